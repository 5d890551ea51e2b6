package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

const (
	mediaJSON   = "application/json"
	mediaObject = "application/vnd.pgrst.object+json"

	maxBodyBytes = 1 << 20
)

// Options configure a Server.
type Options struct {
	AnonKey   string
	JWTSecret string // empty disables bearer token verification
	Limits    Limits
	Logger    *slog.Logger
	Now       func() time.Time
	Registry  *Registry // defaults to DefaultRegistry(Limits)
}

// Server exposes a Store over the REST and RPC endpoints the wallet client
// uses.
type Server struct {
	store Store
	procs *Registry
	opts  Options
	log   *slog.Logger
}

// NewServer creates a server over store.
func NewServer(store Store, opts Options) *Server {
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	procs := opts.Registry
	if procs == nil {
		procs = DefaultRegistry(opts.Limits)
	}
	return &Server{store: store, procs: procs, opts: opts, log: opts.Logger}
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/rest/v1").Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/rpc/{fn}", s.handleRPC).Methods(http.MethodPost)
	api.HandleFunc("/{table}", s.handleSelect).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/{table}", s.handleInsert).Methods(http.MethodPost)
	api.HandleFunc("/{table}", s.handleUpdate).Methods(http.MethodPatch)

	return s.logRequests(r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("dev server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "procedures": s.procs.Names()})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	table, ok := s.table(w, r)
	if !ok {
		return
	}
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "PGRST100", err.Error())
		return
	}

	var rows []Row
	var total int
	err = s.store.Read(r.Context(), func(t Tables) error {
		if r.Method == http.MethodHead {
			all, err := t.Select(table, Filter{Conds: f.Conds})
			total = len(all)
			return err
		}
		rows, err = t.Select(table, f)
		return err
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Range", contentRange(0, total, total))
		w.WriteHeader(http.StatusOK)
		return
	}

	rows = project(rows, r.URL.Query().Get("select"))
	w.Header().Set("Content-Range", contentRange(f.Offset, len(rows), -1))
	s.writeRows(w, r, http.StatusOK, rows)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	table, ok := s.table(w, r)
	if !ok {
		return
	}
	rows, err := decodeRows(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "PGRST102", err.Error())
		return
	}
	if sub := subjectFrom(r.Context()); sub != "" {
		col := ownerColumn(table)
		for _, row := range rows {
			if str(row, col) != sub {
				rowPolicyError(w, table)
				return
			}
		}
	}

	var stored []Row
	err = s.store.Write(r.Context(), func(t Tables) error {
		for _, row := range rows {
			out, err := t.Insert(table, row)
			if err != nil {
				return err
			}
			stored = append(stored, out)
		}
		return nil
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.log.Debug("inserted rows", "table", table, "count", len(stored))

	if !wantsRepresentation(r) {
		w.WriteHeader(http.StatusCreated)
		return
	}
	s.writeRows(w, r, http.StatusCreated, project(stored, r.URL.Query().Get("select")))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	table, ok := s.table(w, r)
	if !ok {
		return
	}
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "PGRST100", err.Error())
		return
	}
	if f.IsEmpty() {
		writeError(w, http.StatusBadRequest, "21000", "UPDATE requires a WHERE clause")
		return
	}
	patches, err := decodeRows(r.Body)
	if err != nil || len(patches) != 1 {
		writeError(w, http.StatusBadRequest, "PGRST102", "request body must be one JSON object")
		return
	}

	// Authenticated updates only reach the caller's own rows, and cannot hand
	// a row to someone else.
	scope := Filter{Conds: f.Conds}
	if sub := subjectFrom(r.Context()); sub != "" {
		col := ownerColumn(table)
		if _, ok := patches[0][col]; ok && str(patches[0], col) != sub {
			rowPolicyError(w, table)
			return
		}
		scope = scope.And(col, OpEq, sub)
	}

	var updated []Row
	err = s.store.Write(r.Context(), func(t Tables) error {
		updated, err = t.Update(table, scope, patches[0])
		return err
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	if !wantsRepresentation(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeRows(w, r, http.StatusOK, project(updated, r.URL.Query().Get("select")))
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["fn"]
	proc, ok := s.procs.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "PGRST202",
			fmt.Sprintf("Could not find the function public.%s in the schema cache", name))
		return
	}

	params := map[string]any{}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "PGRST102", err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "PGRST102", "invalid JSON body: "+err.Error())
			return
		}
	}

	var result any
	run := func(t Tables) error {
		var err error
		result, err = proc.Fn(r.Context(), &Call{
			Params:  params,
			Tables:  t,
			Subject: subjectFrom(r.Context()),
			Now:     s.opts.Now(),
		})
		return err
	}
	if proc.ReadOnly {
		err = s.store.Read(r.Context(), run)
	} else {
		err = s.store.Write(r.Context(), run)
	}

	var pe *ProcError
	switch {
	case errors.As(err, &pe):
		s.log.Info("procedure failed", "fn", name, "code", pe.Code, "message", pe.Message)
		writeError(w, pe.status(), pe.Code, pe.Message)
	case err != nil:
		s.internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// table resolves the {table} route variable, answering 404 for unknown
// tables.
func (s *Server) table(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := mux.Vars(r)["table"]
	if !knownTables[name] {
		writeError(w, http.StatusNotFound, "PGRST205",
			fmt.Sprintf("Could not find the table 'public.%s' in the schema cache", name))
		return "", false
	}
	return name, true
}

// writeRows encodes rows as an array, or as one object when the client
// asked for the single-object media type.
func (s *Server) writeRows(w http.ResponseWriter, r *http.Request, status int, rows []Row) {
	if rows == nil {
		rows = []Row{}
	}
	if !strings.Contains(r.Header.Get("Accept"), mediaObject) {
		writeJSON(w, status, rows)
		return
	}
	if len(rows) != 1 {
		writeErrorDetail(w, http.StatusNotAcceptable, "PGRST116",
			"JSON object requested, multiple (or no) rows returned",
			fmt.Sprintf("The result contains %d rows", len(rows)))
		return
	}
	writeJSON(w, status, rows[0])
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "XX000", err.Error())
}

// authenticate checks the apikey header and, when present and a secret is
// configured, the bearer token.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AnonKey != "" && r.Header.Get("apikey") != s.opts.AnonKey {
			writeError(w, http.StatusUnauthorized, "", "Invalid API key")
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if token == "" || token == s.opts.AnonKey || s.opts.JWTSecret == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := verifyToken(s.opts.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "PGRST301", "JWT invalid: "+err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), claims.Subject)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func wantsRepresentation(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Prefer"), "return=representation")
}

// decodeRows reads a JSON object or array of objects.
func decodeRows(body io.Reader) ([]Row, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if len(raw) > 0 && raw[0] == '[' {
		var rows []Row
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		return rows, nil
	}
	var row Row
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if row == nil {
		return nil, errors.New("request body must be a JSON object")
	}
	return []Row{row}, nil
}

// project keeps only the listed columns. Embedded resources are not
// supported and are skipped.
func project(rows []Row, sel string) []Row {
	sel = strings.TrimSpace(sel)
	if sel == "" || sel == "*" {
		return rows
	}
	var cols []string
	for _, c := range strings.Split(sel, ",") {
		c = strings.TrimSpace(c)
		if c == "*" {
			return rows
		}
		if c != "" && !strings.ContainsAny(c, "():!") {
			cols = append(cols, c)
		}
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		p := make(Row, len(cols))
		for _, c := range cols {
			if v, ok := r[c]; ok {
				p[c] = v
			}
		}
		out[i] = p
	}
	return out
}

// contentRange formats the Content-Range header; total < 0 prints "*".
func contentRange(offset, n, total int) string {
	t := "*"
	if total >= 0 {
		t = strconv.Itoa(total)
	}
	if n == 0 {
		return "*/" + t
	}
	return fmt.Sprintf("%d-%d/%s", offset, offset+n-1, t)
}

type apiError struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details"`
	Hint    *string `json:"hint"`
}

func rowPolicyError(w http.ResponseWriter, table string) {
	writeError(w, http.StatusForbidden, "42501",
		fmt.Sprintf("new row violates row-level security policy for table %q", table))
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError{Code: code, Message: msg})
}

func writeErrorDetail(w http.ResponseWriter, status int, code, msg, details string) {
	writeJSON(w, status, apiError{Code: code, Message: msg, Details: &details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", mediaJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
