package main

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ahjcgit/ifcagent/internal/config"
	"github.com/ahjcgit/ifcagent/pkg/agent"
	"github.com/ahjcgit/ifcagent/pkg/lattice"
)

// clearanceClaims is the JWT claim shape consumed by the HTTP surface
// (SPEC_FULL.md §4.8): clearance_level and clearance_categories become
// the request's user_label instead of a config-file constant.
type clearanceClaims struct {
	jwt.RegisteredClaims
	ClearanceLevel      string   `json:"clearance_level"`
	ClearanceCategories []string `json:"clearance_categories"`
}

// queryRequest is the POST /v1/query body.
type queryRequest struct {
	Prompt string   `json:"prompt"`
	URLs   []string `json:"urls"`
}

type queryResponse struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// serveCommand runs the optional HTTP surface of SPEC_FULL.md §4.8.
// It refuses to start without a configured JWT public key: an
// unauthenticated caller must never be able to manufacture a
// user_label, so there is no "insecure mode" fallback here, unlike
// run_agent's config-file default.
func serveCommand(args []string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewJSONHandler(stderr, nil))

	if len(args) != 1 {
		io.WriteString(stderr, "usage: ifcagent serve <config.json>\n")
		return 1
	}

	cfg, err := config.Load(args[0])
	if err != nil {
		fmt.Fprintf(stdout, "[ERROR] %v\n", err)
		return 1
	}

	if cfg.Server.JWTPublicKeyPath == "" {
		fmt.Fprintln(stdout, "[ERROR] server.jwt_public_key_path is required to run serve")
		return 1
	}

	pubKey, err := loadRSAPublicKey(cfg.Server.JWTPublicKeyPath)
	if err != nil {
		fmt.Fprintf(stdout, "[ERROR] %v\n", err)
		return 1
	}

	orch, _, err := buildOrchestrator(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdout, "[ERROR] %v\n", err)
		return 1
	}

	lt := cfg.BuildLattice()

	h := &queryHandler{
		orchestrator: orch,
		lattice:      lt,
		pubKey:       pubKey,
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/v1/query", h.handleQuery)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	srv := &http.Server{Addr: listenAddr, Handler: mux}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stdout, "[ERROR] %v\n", err)
			return 1
		}
	case <-sigChan:
		logger.Info("shutting down")
		_ = srv.Shutdown(context.Background())
	}

	return 0
}

func loadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("serve: read jwt public key %s: %w", path, err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("serve: parse jwt public key %s: %w", path, err)
	}
	return key, nil
}

type queryHandler struct {
	orchestrator *agent.Orchestrator
	lattice      *lattice.Lattice
	pubKey       *rsa.PublicKey
	logger       *slog.Logger
}

// handleQuery authenticates the request, derives user_label from the
// validated JWT's clearance claims, and runs the pipeline. Any
// authentication failure is fail-closed: 401, no pipeline run.
func (h *queryHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	claims, err := h.authenticate(r)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, err.Error())
		return
	}

	if !h.lattice.IsValidLevel(claims.ClearanceLevel) {
		writeJSONError(w, http.StatusUnauthorized, "token clearance_level is not in the configured lattice")
		return
	}
	userLabel := lattice.NewLabel(claims.ClearanceLevel, claims.ClearanceCategories)

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, u := range req.URLs {
		if !hasSchemeAndNetloc(u) {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid url %q: missing scheme or host", u))
			return
		}
	}

	result, err := h.orchestrator.Run(r.Context(), req.Prompt, userLabel, req.URLs, nil)
	if err != nil {
		h.logger.Error("query failed", "error", err)
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{Text: result.Text, Label: result.Label.String()})
}

func (h *queryHandler) authenticate(r *http.Request) (*clearanceClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, errors.New("missing Authorization header")
	}
	const prefix = "Bearer "
	if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix {
		return nil, errors.New("expected 'Bearer <token>' Authorization header")
	}
	tokenStr := authHeader[len(prefix):]

	claims := &clearanceClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return h.pubKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid or expired token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.ClearanceLevel == "" {
		return nil, errors.New("token clearance_level claim is required")
	}
	return claims, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
