package zkp

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"golang.org/x/sync/errgroup"

	"github.com/hamzazf/shieldwallet/internal/logger"
	"github.com/hamzazf/shieldwallet/internal/shielded"
)

var (
	ErrContextFormat = errors.New("zkp: malformed proving context")

	provingMagic   = [4]byte{'S', 'W', 'P', 'C'}
	verifyingMagic = [4]byte{'S', 'W', 'V', 'C'}
)

const (
	contextVersion = 1
	maxKeySize     = 1 << 32
)

// MultiVerifyingContext verifies posts of every circuit.
type MultiVerifyingContext struct {
	height int
	vk     [numKinds]groth16.VerifyingKey
}

// MultiProvingContext proves posts of every circuit.
type MultiProvingContext struct {
	MultiVerifyingContext
	ccs [numKinds]constraint.ConstraintSystem
	pk  [numKinds]groth16.ProvingKey
}

// Height returns the accumulator height the circuits were built for.
func (v *MultiVerifyingContext) Height() int { return v.height }

// Setup compiles every circuit and runs a Groth16 setup for it. The setup
// is not a ceremony: it suits development networks and tests.
func Setup(height int) (*MultiProvingContext, error) {
	if height < 1 || height > shielded.MaxAccumulatorHeight {
		return nil, fmt.Errorf("zkp: unsupported accumulator height %d", height)
	}
	ctx := &MultiProvingContext{MultiVerifyingContext: MultiVerifyingContext{height: height}}
	var g errgroup.Group
	for _, k := range Kinds {
		k := k
		g.Go(func() error {
			ccs, err := compile(k, height)
			if err != nil {
				return err
			}
			pk, vk, err := groth16.Setup(ccs)
			if err != nil {
				return fmt.Errorf("setup %s circuit: %w", k, err)
			}
			ctx.ccs[k], ctx.pk[k], ctx.vk[k] = ccs, pk, vk
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ctx, nil
}

// Verifying returns the verifying half of the context.
func (p *MultiProvingContext) Verifying() *MultiVerifyingContext {
	return &p.MultiVerifyingContext
}

// Prove generates the proof of a statement.
func (p *MultiProvingContext) Prove(st *Statement) (shielded.Proof, error) {
	if st.Kind >= numKinds {
		return shielded.Proof{}, fmt.Errorf("%w: %s", ErrUnknownShape, st.Kind)
	}
	assignment, err := assign(st, p.height)
	if err != nil {
		return shielded.Proof{}, err
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return shielded.Proof{}, fmt.Errorf("witness creation failed: %w", err)
	}
	start := time.Now()
	proof, err := groth16.Prove(p.ccs[st.Kind], p.pk[st.Kind], w)
	if err != nil {
		return shielded.Proof{}, fmt.Errorf("proof generation failed: %w", err)
	}
	log := logger.Logger()
	log.Debug().Str("circuit", st.Kind.String()).Dur("took", time.Since(start)).Msg("proof generated")
	return toProof(proof)
}

// Verify checks the proof of a post against its public inputs.
func (v *MultiVerifyingContext) Verify(post *shielded.TransferPost) error {
	kind, assignment, err := publicAssignment(post, v.height)
	if err != nil {
		return err
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}
	if err := groth16.Verify(fromProof(&post.Proof), v.vk[kind], w); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidProof, kind, err)
	}
	return nil
}

// WriteTo serializes the proving context: header, then the proving and
// verifying key of every circuit. Constraint systems are recompiled on load.
func (p *MultiProvingContext) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := writeHeader(cw, provingMagic, p.height); err != nil {
		return cw.n, err
	}
	for _, k := range Kinds {
		if err := writeFramed(cw, p.pk[k]); err != nil {
			return cw.n, fmt.Errorf("write %s proving key: %w", k, err)
		}
		if err := writeFramed(cw, p.vk[k]); err != nil {
			return cw.n, fmt.Errorf("write %s verifying key: %w", k, err)
		}
	}
	return cw.n, nil
}

// WriteTo serializes the verifying context.
func (v *MultiVerifyingContext) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := writeHeader(cw, verifyingMagic, v.height); err != nil {
		return cw.n, err
	}
	for _, k := range Kinds {
		if err := writeFramed(cw, v.vk[k]); err != nil {
			return cw.n, fmt.Errorf("write %s verifying key: %w", k, err)
		}
	}
	return cw.n, nil
}

// ReadProvingContext deserializes a context written by WriteTo.
func ReadProvingContext(r io.Reader) (*MultiProvingContext, error) {
	height, err := readHeader(r, provingMagic)
	if err != nil {
		return nil, err
	}
	ctx := &MultiProvingContext{MultiVerifyingContext: MultiVerifyingContext{height: height}}
	for _, k := range Kinds {
		pk := groth16.NewProvingKey(ecc.BN254)
		if err := readFramed(r, pk); err != nil {
			return nil, fmt.Errorf("read %s proving key: %w", k, err)
		}
		vk := groth16.NewVerifyingKey(ecc.BN254)
		if err := readFramed(r, vk); err != nil {
			return nil, fmt.Errorf("read %s verifying key: %w", k, err)
		}
		ccs, err := compile(k, height)
		if err != nil {
			return nil, err
		}
		ctx.ccs[k], ctx.pk[k], ctx.vk[k] = ccs, pk, vk
	}
	return ctx, nil
}

// ReadVerifyingContext deserializes a verifying context.
func ReadVerifyingContext(r io.Reader) (*MultiVerifyingContext, error) {
	height, err := readHeader(r, verifyingMagic)
	if err != nil {
		return nil, err
	}
	ctx := &MultiVerifyingContext{height: height}
	for _, k := range Kinds {
		vk := groth16.NewVerifyingKey(ecc.BN254)
		if err := readFramed(r, vk); err != nil {
			return nil, fmt.Errorf("read %s verifying key: %w", k, err)
		}
		ctx.vk[k] = vk
	}
	return ctx, nil
}

// SaveProvingContext writes the context to path.
func SaveProvingContext(path string, p *MultiProvingContext) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if _, err := p.WriteTo(bw); err != nil {
		return err
	}
	return bw.Flush()
}

// LoadProvingContext reads a context saved with SaveProvingContext.
func LoadProvingContext(path string) (*MultiProvingContext, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadProvingContext(bufio.NewReader(f))
}

// SetupOrLoad loads the context at path when it exists for the same height,
// otherwise runs Setup and saves the result.
func SetupOrLoad(path string, height int) (*MultiProvingContext, error) {
	log := logger.Logger()
	ctx, err := LoadProvingContext(path)
	if err == nil && ctx.height == height {
		return ctx, nil
	}
	if err == nil {
		log.Warn().Str("path", path).Int("have", ctx.height).Int("want", height).Msg("proving context height mismatch, running setup")
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("unreadable proving context, running setup")
	}
	ctx, err = Setup(height)
	if err != nil {
		return nil, err
	}
	if err := SaveProvingContext(path, ctx); err != nil {
		return nil, fmt.Errorf("save proving context: %w", err)
	}
	return ctx, nil
}

func writeHeader(w io.Writer, magic [4]byte, height int) error {
	hdr := [7]byte{magic[0], magic[1], magic[2], magic[3], contextVersion, byte(height), byte(numKinds)}
	_, err := w.Write(hdr[:])
	return err
}

func readHeader(r io.Reader, magic [4]byte) (int, error) {
	var hdr [7]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, fmt.Errorf("%w: header: %v", ErrContextFormat, err)
	}
	if !bytes.Equal(hdr[:4], magic[:]) {
		return 0, fmt.Errorf("%w: bad magic %q", ErrContextFormat, hdr[:4])
	}
	if hdr[4] != contextVersion {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrContextFormat, hdr[4])
	}
	height := int(hdr[5])
	if height < 1 || height > shielded.MaxAccumulatorHeight {
		return 0, fmt.Errorf("%w: height %d", ErrContextFormat, height)
	}
	if hdr[6] != byte(numKinds) {
		return 0, fmt.Errorf("%w: %d circuits, want %d", ErrContextFormat, hdr[6], numKinds)
	}
	return height, nil
}

func writeFramed(w io.Writer, src io.WriterTo) error {
	var buf bytes.Buffer
	if _, err := src.WriteTo(&buf); err != nil {
		return err
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(buf.Len()))
	if _, err := w.Write(n[:]); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func readFramed(r io.Reader, dst io.ReaderFrom) error {
	var n [8]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return fmt.Errorf("%w: frame length: %v", ErrContextFormat, err)
	}
	size := binary.BigEndian.Uint64(n[:])
	if size == 0 || size > maxKeySize {
		return fmt.Errorf("%w: frame length %d", ErrContextFormat, size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("%w: frame body: %v", ErrContextFormat, err)
	}
	read, err := dst.ReadFrom(bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrContextFormat, err)
	}
	if uint64(read) != size {
		return fmt.Errorf("%w: %d trailing bytes in frame", ErrContextFormat, size-uint64(read))
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
