package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/hamzazf/shieldwallet/internal/keys"
	"github.com/hamzazf/shieldwallet/internal/metrics"
	"github.com/hamzazf/shieldwallet/internal/raw"
	"github.com/hamzazf/shieldwallet/internal/registry"
	"github.com/hamzazf/shieldwallet/internal/shielded"
	"github.com/hamzazf/shieldwallet/internal/signer"
	"github.com/hamzazf/shieldwallet/internal/storage"
	"github.com/hamzazf/shieldwallet/internal/wallet"
)

// maxRequestBytes bounds one API request body.
const maxRequestBytes = 16 << 20

// taskTTL is how long a finished task stays queryable when nobody reads it.
const taskTTL = 10 * time.Minute

// errBadRequest marks errors in the request itself. Decode errors without it
// come from ledger data.
var errBadRequest = errors.New("bad request")

func badRequest(err error) error {
	return fmt.Errorf("%w: %w", errBadRequest, err)
}

// API serves the registry over HTTP under /networks/:network/.
type API struct {
	registry *registry.Registry
	store    *storage.Store
	metrics  *metrics.Collector
	health   *HealthChecker
	limiter  *NetworkRateLimiter
	log      zerolog.Logger

	mu    sync.Mutex
	tasks map[string]*trackedTask
	// taskTTL overrides the default taskTTL when positive.
	taskTTL time.Duration
}

// Handler returns the routed API wrapped in CORS.
func (a *API) Handler(origins []string) http.Handler {
	if a.tasks == nil {
		a.tasks = make(map[string]*trackedTask)
	}
	r := httprouter.New()
	r.GET("/health", a.handleHealth)
	r.GET("/metrics", a.handleMetrics)
	r.POST("/keys/mnemonic", a.handleNewMnemonic)
	r.POST("/keys/address", a.handleAddressFromMnemonic)

	const p = "/networks/:network/"
	r.POST(p+"sync", a.network(a.handleSync))
	r.POST(p+"sbt_sync", a.network(a.handleSbtSync))
	r.POST(p+"sync_partial", a.network(a.handleSyncPartial))
	r.POST(p+"sbt_sync_partial", a.network(a.handleSbtSyncPartial))
	r.POST(p+"initial_sync", a.network(a.handleInitialSync))
	r.POST(p+"restart", a.network(a.handleRestart))
	r.POST(p+"sign", a.network(a.handleSign))
	r.POST(p+"sign_with_transaction_data", a.network(a.handleSignWithTransactionData))
	r.POST(p+"post", a.network(a.handlePost))
	r.POST(p+"transaction_data", a.network(a.handleTransactionData))
	r.POST(p+"identity_proof", a.network(a.handleIdentityProof))
	r.POST(p+"prune", a.network(a.handlePrune))
	r.POST(p+"reset_state", a.network(a.handleResetState))
	r.GET(p+"address", a.network(a.handleAddress))
	r.GET(p+"balance/:asset", a.network(a.handleBalance))
	r.POST(p+"contains", a.network(a.handleContains))
	r.GET(p+"assets", a.network(a.handleAssets))
	r.GET(p+"checkpoint", a.network(a.handleCheckpoint))
	r.GET(p+"storage", a.network(a.handleGetStorage))
	r.PUT(p+"storage", a.network(a.handleSetStorage))
	r.PUT(p+"authorization", a.network(a.handleLoadAuthorization))
	r.DELETE(p+"authorization", a.network(a.handleDropAuthorization))
	r.PUT(p+"accounts", a.network(a.handleLoadAccounts))
	r.DELETE(p+"accounts", a.network(a.handleDropAccounts))
	r.POST(p+"tasks/sync", a.network(a.handleSpawnSync))
	r.GET("/tasks/:id", a.handleTask)
	r.DELETE("/tasks/:id", a.handleCancelTask)

	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)
}

type networkHandler func(w http.ResponseWriter, r *http.Request, n registry.Network, ps httprouter.Params)

// network resolves :network and applies its rate limit.
func (a *API) network(h networkHandler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		n, err := registry.ParseNetwork(ps.ByName("network"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if !a.limiter.Allow(n.String()) {
			writeError(w, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded for %s", n))
			return
		}
		h(w, r, n, ps)
	}
}

// status maps wallet errors to HTTP codes.
func status(err error) int {
	switch {
	case errors.Is(err, registry.ErrNoWalletForNetwork):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest), errors.Is(err, keys.ErrInvalidMnemonic):
		return http.StatusBadRequest
	case errors.Is(err, signer.ErrSign):
		return http.StatusUnprocessableEntity
	case errors.Is(err, signer.ErrInconsistency), errors.Is(err, wallet.ErrStalled):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}

func (a *API) fail(w http.ResponseWriter, n registry.Network, op string, err error) {
	a.log.Warn().Err(err).Str("network", n.String()).Str("op", op).Msg("request failed")
	writeError(w, status(err), err)
}

// persist stores the snapshot of n after a state change.
func (a *API) persist(n registry.Network) {
	if a.store == nil {
		return
	}
	snapshot, err := a.registry.Storage(n)
	if err == nil {
		err = a.store.Put(n.String(), snapshot)
	}
	if err != nil {
		a.log.Error().Err(err).Str("network", n.String()).Msg("snapshot not persisted")
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		return badRequest(fmt.Errorf("%w: request body: %v", raw.ErrDecode, err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// ---- service ----

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	report := a.health.CheckHealth(r.Context())
	code := http.StatusOK
	if report.OverallStatus == Unhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, CreateHealthResponse(report))
}

func (a *API) handleMetrics(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, a.metrics.Summary())
}

func (a *API) handleNewMnemonic(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	m, err := keys.GenerateMnemonic(keys.DefaultMnemonicBits)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, mnemonicJSON{Mnemonic: m.Phrase()})
}

func (a *API) handleAddressFromMnemonic(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req mnemonicJSON
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	m, err := keys.MnemonicFromPhrase(req.Mnemonic)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	address, err := keys.AddressFromMnemonic(m)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeAddress(address))
}

// ---- sync ----

func (a *API) handleSync(w http.ResponseWriter, r *http.Request, n registry.Network, _ httprouter.Params) {
	delta, err := a.registry.Sync(r.Context(), n)
	a.persist(n)
	if err != nil {
		a.fail(w, n, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, encodeBalanceUpdate(delta))
}

func (a *API) handleSbtSync(w http.ResponseWriter, r *http.Request, n registry.Network, _ httprouter.Params) {
	delta, err := a.registry.SbtSync(r.Context(), n)
	a.persist(n)
	if err != nil {
		a.fail(w, n, "sbt_sync", err)
		return
	}
	writeJSON(w, http.StatusOK, encodeBalanceUpdate(delta))
}

func (a *API) writeFlow(w http.ResponseWriter, n registry.Network, op string, flow wallet.ControlFlow, err error) {
	a.persist(n)
	if err != nil {
		a.fail(w, n, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"should_continue": flow == wallet.Continue})
}

func (a *API) handleSyncPartial(w http.ResponseWriter, r *http.Request, n registry.Network, _ httprouter.Params) {
	flow, err := a.registry.SyncPartial(r.Context(), n)
	a.writeFlow(w, n, "sync_partial", flow, err)
}

func (a *API) handleSbtSyncPartial(w http.ResponseWriter, r *http.Request, n registry.Network, _ httprouter.Params) {
	flow, err := a.registry.SbtSyncPartial(r.Context(), n)
	a.writeFlow(w, n, "sbt_sync_partial", flow, err)
}

func (a *API) handleInitialSync(w http.ResponseWriter, r *http.Request, n registry.Network, _ httprouter.Params) {
	if err := a.registry.InitialSync(r.Context(), n); err != nil {
		a.fail(w, n, "initial_sync", err)
		return
	}
	a.persist(n)
	a.writeCheckpoint(w, n)
}

func (a *API) handleRestart(w http.ResponseWriter, r *http.Request, n registry.Network, _ httprouter.Params) {
	err := a.registry.Restart(r.Context(), n)
	a.persist(n)
	if err != nil {
		a.fail(w, n, "restart", err)
		return
	}
	a.writeCheckpoint(w, n)
}

func (a *API) writeCheckpoint(w http.ResponseWriter, n registry.Network) {
	cp, err := a.registry.Checkpoint(n)
	if err != nil {
		a.fail(w, n, "checkpoint", err)
		return
	}
	writeJSON(w, http.StatusOK, checkpointJSON{Checkpoint: cp})
}

// ---- signing ----

func decodeTransaction(r *http.Request) (signer.Transaction, *signer.AssetMetadata, error) {
	var req transactionJSON
	if err := decodeBody(r, &req); err != nil {
		return signer.Transaction{}, nil, err
	}
	tx, err := req.decode()
	if err != nil {
		return signer.Transaction{}, nil, badRequest(fmt.Errorf("%w: %v", raw.ErrDecode, err))
	}
	return tx, req.Metadata, nil
}

func (a *API) handleSign(w http.ResponseWriter, r *http.Request, n registry.Network, _ httprouter.Params) {
	tx, meta, err := decodeTransaction(r)
	if err != nil {
		a.fail(w, n, "sign", err)
		return
	}
	posts, err := a.registry.Sign(r.Context(), n, tx, meta)
	if err != nil {
		a.fail(w, n, "sign", err)
		return
	}
	encoded, err := raw.EncodeTransferPosts(posts)
	if err != nil {
		a.fail(w, n, "sign", err)
		return
	}
	writeJSON(w, http.StatusOK, signResponse{Posts: encoded})
}

func (a *API) handleSignWithTransactionData(w http.ResponseWriter, r *http.Request, n registry.Network, _ httprouter.Params) {
	tx, meta, err := decodeTransaction(r)
	if err != nil {
		a.fail(w, n, "sign_with_transaction_data", err)
		return
	}
	posts, data, err := a.registry.SignWithTransactionData(r.Context(), n, tx, meta)
	if err != nil {
		a.fail(w, n, "sign_with_transaction_data", err)
		return
	}
	encoded, err := raw.EncodeTransferPosts(posts)
	if err != nil {
		a.fail(w, n, "sign_with_transaction_data", err)
		return
	}
	writeJSON(w, http.StatusOK, signResponse{Posts: encoded, TransactionData: encodeTransactionData(data)})
}

func (a *API) handlePost(w http.ResponseWriter, r *http.Request, n registry.Network, _ httprouter.Params) {
	tx, meta, err := decodeTransaction(r)
	if err != nil {
		a.fail(w, n, "post", err)
		return
	}
	resp, err := a.registry.Post(r.Context(), n, tx, meta)
	a.persist(n)
	if err != nil {
		a.fail(w, n, "post", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleTransactionData(w http.ResponseWriter, r *http.Request, n registry.Network, _ httprouter.Params) {
	var req []raw.TransferPost
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, n, "transaction_data", err)
		return
	}
	posts, err := raw.DecodeTransferPosts(req)
	if err != nil {
		a.fail(w, n, "transaction_data", badRequest(err))
		return
	}
	data, err := a.registry.TransactionData(n, posts)
	if err != nil {
		a.fail(w, n, "transaction_data", err)
		return
	}
	writeJSON(w, http.StatusOK, encodeTransactionData(data))
}

func (a *API) handleIdentityProof(w http.ResponseWriter, r *http.Request, n registry.Network, _ httprouter.Params) {
	var req []identityRequestJSON
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, n, "identity_proof", err)
		return
	}
	reqs := make([]signer.IdentityRequest, 0, len(req))
	for _, q := range req {
		id, err := raw.ParseAssetID(q.AssetID)
		if err != nil {
			a.fail(w, n, "identity_proof", badRequest(fmt.Errorf("%w: %v", raw.ErrDecode, err)))
			return
		}
		reqs = append(reqs, signer.IdentityRequest{AssetID: id, Account: shielded.AccountID(q.Account)})
	}
	proofs, err := a.registry.IdentityProof(n, reqs)
	if err != nil {
		a.fail(w, n, "identity_proof", err)
		return
	}
	out := make([]raw.TransferPost, 0, len(proofs))
	for _, p := range proofs {
		post, err := raw.EncodeTransferPost(p.Post)
		if err != nil {
			a.fail(w, n, "identity_proof", err)
			return
		}
		out = append(out, post)
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- state ----

func (a *API) handlePrune(w http.ResponseWriter, _ *http.Request, n registry.Network, _ httprouter.Params) {
	removed, err := a.registry.Prune(n)
	if err != nil {
		a.fail(w, n, "prune", err)
		return
	}
	a.persist(n)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (a *API) handleResetState(w http.ResponseWriter, _ *http.Request, n registry.Network, _ httprouter.Params) {
	if err := a.registry.ResetState(n); err != nil {
		a.fail(w, n, "reset_state", err)
		return
	}
	a.persist(n)
	a.writeCheckpoint(w, n)
}

func (a *API) handleGetStorage(w http.ResponseWriter, _ *http.Request, n registry.Network, _ httprouter.Params) {
	snapshot, err := a.registry.Storage(n)
	if err != nil {
		a.fail(w, n, "storage", err)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snapshot)
}

func (a *API) handleSetStorage(w http.ResponseWriter, r *http.Request, n registry.Network, _ httprouter.Params) {
	snapshot, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.registry.SetStorage(n, snapshot); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.persist(n)
	a.writeCheckpoint(w, n)
}

// ---- queries ----

func (a *API) handleAddress(w http.ResponseWriter, _ *http.Request, n registry.Network, _ httprouter.Params) {
	address, err := a.registry.Address(n)
	if err != nil {
		if errors.Is(err, signer.ErrAccountsNotLoaded) {
			writeError(w, http.StatusPreconditionFailed, err)
			return
		}
		a.fail(w, n, "address", err)
		return
	}
	writeJSON(w, http.StatusOK, encodeAddress(address))
}

func (a *API) handleBalance(w http.ResponseWriter, _ *http.Request, n registry.Network, ps httprouter.Params) {
	id, err := raw.ParseAssetID(ps.ByName("asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v, err := a.registry.Balance(n, id)
	if err != nil {
		a.fail(w, n, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, assetJSON{ID: raw.FormatAssetID(id), Value: v.Dec()})
}

func (a *API) handleContains(w http.ResponseWriter, r *http.Request, n registry.Network, _ httprouter.Params) {
	var req assetJSON
	if err := decodeBody(r, &req); err != nil {
		a.fail(w, n, "contains", err)
		return
	}
	asset, err := req.decode()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ok, err := a.registry.Contains(n, asset)
	if err != nil {
		a.fail(w, n, "contains", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"contains": ok})
}

func (a *API) handleAssets(w http.ResponseWriter, _ *http.Request, n registry.Network, _ httprouter.Params) {
	assets, err := a.registry.Assets(n)
	if err != nil {
		a.fail(w, n, "assets", err)
		return
	}
	writeJSON(w, http.StatusOK, encodeAssets(assets))
}

func (a *API) handleCheckpoint(w http.ResponseWriter, _ *http.Request, n registry.Network, _ httprouter.Params) {
	a.writeCheckpoint(w, n)
}

// ---- keys ----

func mnemonicFromBody(r *http.Request) (keys.Mnemonic, error) {
	var req mnemonicJSON
	if err := decodeBody(r, &req); err != nil {
		return keys.Mnemonic{}, err
	}
	return keys.MnemonicFromPhrase(req.Mnemonic)
}

func (a *API) handleLoadAuthorization(w http.ResponseWriter, r *http.Request, n registry.Network, _ httprouter.Params) {
	m, err := mnemonicFromBody(r)
	if err != nil {
		a.fail(w, n, "load_authorization", err)
		return
	}
	c, err := keys.AuthorizationContextFromMnemonic(m)
	if err != nil {
		a.fail(w, n, "load_authorization", err)
		return
	}
	ok, err := a.registry.TryLoadAuthorizationContext(n, c)
	if err != nil {
		a.fail(w, n, "load_authorization", err)
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, errors.New("authorization context does not match the loaded accounts"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"loaded": true})
}

func (a *API) handleDropAuthorization(w http.ResponseWriter, _ *http.Request, n registry.Network, _ httprouter.Params) {
	if err := a.registry.DropAuthorizationContext(n); err != nil {
		a.fail(w, n, "drop_authorization", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"loaded": false})
}

func (a *API) handleLoadAccounts(w http.ResponseWriter, r *http.Request, n registry.Network, _ httprouter.Params) {
	m, err := mnemonicFromBody(r)
	if err != nil {
		a.fail(w, n, "load_accounts", err)
		return
	}
	accounts, err := keys.AccountsFromMnemonic(m)
	if err != nil {
		a.fail(w, n, "load_accounts", err)
		return
	}
	if err := a.registry.LoadAccounts(n, accounts); err != nil {
		a.fail(w, n, "load_accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, encodeAddress(accounts.Address()))
}

func (a *API) handleDropAccounts(w http.ResponseWriter, _ *http.Request, n registry.Network, _ httprouter.Params) {
	if err := a.registry.DropAccounts(n); err != nil {
		a.fail(w, n, "drop_accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"loaded": false})
}

// ---- tasks ----

type trackedTask struct {
	*registry.Task
	finished time.Time
}

// sweepTasks drops finished tasks older than the TTL. Callers hold a.mu.
func (a *API) sweepTasks(now time.Time) {
	ttl := taskTTL
	if a.taskTTL > 0 {
		ttl = a.taskTTL
	}
	for id, t := range a.tasks {
		if t.finished.IsZero() {
			select {
			case <-t.Done():
				t.finished = now
			default:
				continue
			}
		}
		if now.Sub(t.finished) >= ttl {
			delete(a.tasks, id)
		}
	}
}

func (a *API) handleSpawnSync(w http.ResponseWriter, _ *http.Request, n registry.Network, _ httprouter.Params) {
	// The task outlives the request, so it does not inherit its context.
	task, err := a.registry.Spawn(context.Background(), n, func(ctx context.Context, wl *wallet.Wallet) error {
		_, err := wl.Sync(ctx)
		a.persist(n)
		return err
	})
	if err != nil {
		a.fail(w, n, "spawn_sync", err)
		return
	}
	a.mu.Lock()
	a.sweepTasks(time.Now())
	a.tasks[task.ID] = &trackedTask{Task: task}
	a.mu.Unlock()
	writeJSON(w, http.StatusAccepted, taskView(task))
}

func taskView(t *registry.Task) taskJSON {
	view := taskJSON{ID: t.ID, Network: t.Network.String()}
	select {
	case <-t.Done():
		view.Done = true
		if err := t.Err(); err != nil {
			view.Error = err.Error()
		}
	default:
	}
	return view
}

func (a *API) task(id string) (*registry.Task, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sweepTasks(time.Now())
	t, ok := a.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Task, true
}

// forget drops a task once its final state was reported.
func (a *API) forget(id string) {
	a.mu.Lock()
	delete(a.tasks, id)
	a.mu.Unlock()
}

func (a *API) handleTask(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	t, ok := a.task(ps.ByName("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown task %s", ps.ByName("id")))
		return
	}
	view := taskView(t)
	if view.Done {
		a.forget(t.ID)
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleCancelTask(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	t, ok := a.task(ps.ByName("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown task %s", ps.ByName("id")))
		return
	}
	t.Cancel()
	view := taskView(t)
	if view.Done {
		a.forget(t.ID)
	}
	writeJSON(w, http.StatusAccepted, view)
}
