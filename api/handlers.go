package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"reprojects/geocode"
	"reprojects/identity"
	"reprojects/models"
	"reprojects/services"
	"reprojects/storage"
	"reprojects/workers"
)

// RunHistory lists recorded query and canary runs.
type RunHistory interface {
	RecentRuns(ctx context.Context, city string, limit int) ([]models.QueryRun, error)
	RunLogs(ctx context.Context, runID uuid.UUID) ([]models.QueryLog, error)
}

// Handler serves the listing and geocode endpoints plus the store views.
type Handler struct {
	scraper  workers.Scraper
	geocoder geocode.Geocoder
	queries  *services.QueryService
	store    *storage.AggregateStore
	canary   *workers.CanaryWorker
	history  RunHistory
}

func NewHandler(scraper workers.Scraper, geocoder geocode.Geocoder, queries *services.QueryService, store *storage.AggregateStore) *Handler {
	return &Handler{
		scraper:  scraper,
		geocoder: geocoder,
		queries:  queries,
		store:    store,
	}
}

func (h *Handler) SetCanary(c *workers.CanaryWorker) {
	h.canary = c
}

func (h *Handler) SetHistory(r RunHistory) {
	h.history = r
}

func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	r.HandleFunc("/health", h.health).Methods("GET")
	r.HandleFunc("/scrapeProjects", h.scrapeProjects).Methods("GET")
	r.HandleFunc("/geocode", h.geocode).Methods("POST")
	r.HandleFunc("/cities/{city}/query", h.startQuery).Methods("POST")
	r.HandleFunc("/cities/{city}/projects", h.cityProjects).Methods("GET")
	r.HandleFunc("/runs", h.runs).Methods("GET")
	r.HandleFunc("/runs/{id}/logs", h.runLogs).Methods("GET")
	r.HandleFunc("/canary", h.canaryResults).Methods("GET")
	r.HandleFunc("/canary", h.triggerCanary).Methods("POST")

	// same endpoints under the /api prefix existing clients call
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/scrapeProjects", h.scrapeProjects).Methods("GET")
	api.HandleFunc("/geocode", h.geocode).Methods("POST")

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// scrapeProjects never fails on upstream trouble: demo listings and an
// advisory message come back with a 200 instead.
func (h *Handler) scrapeProjects(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("cityName"))
	if city == "" {
		writeError(w, http.StatusBadRequest, services.ErrEmptyCity.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.scraper.Scrape(r.Context(), city))
}

type geocodeRequest struct {
	Location string `json:"location"`
}

type geocodeResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *Handler) geocode(w http.ResponseWriter, r *http.Request) {
	var req geocodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Printf("Geocode: bad request body: %v", err)
	}
	if strings.TrimSpace(req.Location) == "" {
		writeError(w, http.StatusBadRequest, "Location is required")
		return
	}

	coords, err := h.geocoder.Geocode(r.Context(), req.Location)
	switch geocode.Classify(err) {
	case geocode.FailureNone:
		writeJSON(w, http.StatusOK, geocodeResponse{Lat: coords.Lat, Lng: coords.Lng})
	case geocode.FailureValidation:
		writeError(w, http.StatusBadRequest, "Location is required")
	case geocode.FailureConfig:
		log.Printf("Geocode: %v", err)
		writeError(w, http.StatusInternalServerError, "PositionStack API key not configured")
	case geocode.FailureNotFound:
		writeError(w, http.StatusNotFound, "Location not found")
	default:
		log.Printf("Geocode: %q: %v", req.Location, err)
		writeError(w, http.StatusInternalServerError, "Failed to geocode location")
	}
}

type startResponse struct {
	RunID uuid.UUID `json:"runId"`
	City  string    `json:"city"`
}

func (h *Handler) startQuery(w http.ResponseWriter, r *http.Request) {
	city := mux.Vars(r)["city"]

	run, err := h.queries.Start(city)
	switch {
	case errors.Is(err, services.ErrEmptyCity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrDuplicateQuery):
		resp := map[string]any{"error": err.Error()}
		if id, ok := h.queries.InFlight(city); ok {
			resp["runId"] = id
		}
		writeJSON(w, http.StatusConflict, resp)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, startResponse{RunID: run.ID, City: run.City})
	}
}

type projectsResponse struct {
	City         string           `json:"city"`
	Projects     []models.Listing `json:"projects"`
	IsLoading    bool             `json:"isLoading"`
	Error        *string          `json:"error"`
	Version      uint64           `json:"version"`
	WithLocation int              `json:"withLocation"`
}

func (h *Handler) cityProjects(w http.ResponseWriter, r *http.Request) {
	city := identity.CityKey(mux.Vars(r)["city"])
	state := h.store.Snapshot()
	if city == "" || state.City != city {
		writeError(w, http.StatusNotFound, "No results for this city; start a query first")
		return
	}

	writeJSON(w, http.StatusOK, projectsResponse{
		City:         state.City,
		Projects:     state.Listings,
		IsLoading:    state.Loading,
		Error:        state.Error,
		Version:      state.Version,
		WithLocation: state.WithLocation(),
	})
}

func (h *Handler) runs(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "Run history is not enabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	city := identity.CityKey(r.URL.Query().Get("city"))
	runs, err := h.history.RecentRuns(r.Context(), city, limit)
	if err != nil {
		log.Printf("Runs: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load runs")
		return
	}
	if runs == nil {
		runs = []models.QueryRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) runLogs(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "Run history is not enabled")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid run id")
		return
	}

	logs, err := h.history.RunLogs(r.Context(), id)
	if err != nil {
		log.Printf("Run logs %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to load run logs")
		return
	}
	if logs == nil {
		logs = []models.QueryLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runId": id, "logs": logs})
}

func (h *Handler) canaryResults(w http.ResponseWriter, r *http.Request) {
	if h.canary == nil {
		writeError(w, http.StatusNotFound, "Canary is not enabled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": h.canary.LastResults()})
}

func (h *Handler) triggerCanary(w http.ResponseWriter, r *http.Request) {
	if h.canary == nil {
		writeError(w, http.StatusNotFound, "Canary is not enabled")
		return
	}
	h.canary.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: encode response: %v", err)
	}
}
