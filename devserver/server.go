// Package devserver is an in-memory stand-in for the seat-lock service, used
// by --dev mode and by tests. It implements the same contract the console
// consumes: seat map, hold and release per showtime, identified by the
// X-Session-Id header. Holds expire after a fixed TTL.
package devserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"seat-console/model"
)

const (
	DefaultHoldTTL = 10 * time.Minute

	headerSessionID      = "X-Session-Id"
	headerIdempotencyKey = "Idempotency-Key"
)

var (
	errUnknownSeat  = errors.New("unknown seat")
	errSeatSold     = errors.New("seat already sold")
	errSeatTaken    = errors.New("seat held by another session")
	errSplitCouple  = errors.New("couple seats must be held and released together")
	errNoSeats      = errors.New("seatIds must not be empty")
	errNoSessionHdr = errors.New("missing " + headerSessionID + " header")
)

type hold struct {
	session string
	expires time.Time
}

type showtime struct {
	info  model.Showtime
	seats map[int64]model.Seat
	holds map[int64]hold
}

// replay is a stored mutation response, kept as long as a hold would be.
type replay struct {
	status  int
	body    gin.H
	expires time.Time
}

// Server keeps showtimes, seats and holds in memory.
type Server struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	showtimes map[string]*showtime
	replays   map[string]replay
	logger    *slog.Logger
}

func New(ttl time.Duration, logger *slog.Logger) *Server {
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ttl:       ttl,
		now:       time.Now,
		showtimes: map[string]*showtime{},
		replays:   map[string]replay{},
		logger:    logger,
	}
}

// AddShowtime registers a showtime and its seat layout. Seats with status
// SOLD stay sold; every other seat starts free.
func (s *Server) AddShowtime(info model.Showtime, seats []model.Seat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &showtime{info: info, seats: map[int64]model.Seat{}, holds: map[int64]hold{}}
	for _, seat := range seats {
		seat.HeldByCurrentUser = false
		if seat.Status != model.SeatSold {
			seat.Status = model.SeatAvailable
		}
		st.seats[seat.Id] = seat
	}
	s.showtimes[info.Id] = st
}

// HoldFor lets tests and the demo place a hold on behalf of another session.
func (s *Server) HoldFor(showtimeID string, session string, ids ...int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.showtimes[showtimeID]
	if !ok {
		return fmt.Errorf("unknown showtime %s", showtimeID)
	}
	return s.holdLocked(st, session, ids)
}

// Router serves the API under prefix, e.g. "/api".
func (s *Server) Router(prefix string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.loggingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group(strings.TrimRight(prefix, "/"))
	{
		api.GET("/showtimes/:id", s.handleGetShowtime)
		api.GET("/showtimes/:id/seats", s.requireSession, s.handleListSeats)
		api.POST("/showtimes/:id/holds", s.requireSession, s.handleHold)
		api.POST("/showtimes/:id/holds/release", s.requireSession, s.handleRelease)
	}
	return r
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http",
			slog.Group("http",
				slog.Int("status", c.Writer.Status()),
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.String("session", c.GetHeader(headerSessionID)),
				slog.Duration("latency", time.Since(start)),
			),
		)
	}
}

func (s *Server) requireSession(c *gin.Context) {
	session := strings.TrimSpace(c.GetHeader(headerSessionID))
	if session == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errNoSessionHdr.Error()})
		return
	}
	if _, err := uuid.Parse(session); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session id"})
		return
	}
	c.Set("session", session)
	c.Next()
}

func (s *Server) handleGetShowtime(c *gin.Context) {
	s.mu.Lock()
	st, ok := s.showtimes[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "showtime not found"})
		return
	}
	c.JSON(http.StatusOK, st.info)
}

func (s *Server) handleListSeats(c *gin.Context) {
	session := c.GetString("session")

	s.mu.Lock()
	st, ok := s.showtimes[c.Param("id")]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "showtime not found"})
		return
	}
	s.expireLocked(st)
	seats := make([]model.Seat, 0, len(st.seats))
	for id, seat := range st.seats {
		if h, held := st.holds[id]; held {
			seat.Status = model.SeatHeld
			seat.HeldByCurrentUser = h.session == session
		}
		seats = append(seats, seat)
	}
	s.mu.Unlock()

	sort.Slice(seats, func(i, j int) bool { return seats[i].Id < seats[j].Id })
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, model.SeatMap{Seats: seats})
}

func (s *Server) handleHold(c *gin.Context) {
	s.mutate(c, func(st *showtime, session string, ids []int64) error {
		return s.holdLocked(st, session, ids)
	})
}

func (s *Server) handleRelease(c *gin.Context) {
	s.mutate(c, func(st *showtime, session string, ids []int64) error {
		if err := checkCouples(st, ids); err != nil {
			return err
		}
		for _, id := range ids {
			if h, ok := st.holds[id]; ok && h.session == session {
				delete(st.holds, id)
			}
		}
		return nil
	})
}

func (s *Server) mutate(c *gin.Context, apply func(st *showtime, session string, ids []int64) error) {
	session := c.GetString("session")
	var req model.SeatIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if len(req.SeatIds) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errNoSeats.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireReplaysLocked()
	key := c.GetHeader(headerIdempotencyKey)
	if key != "" {
		if prev, ok := s.replays[session+"/"+key]; ok {
			c.JSON(prev.status, prev.body)
			return
		}
	}

	st, ok := s.showtimes[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "showtime not found"})
		return
	}
	s.expireLocked(st)

	status, body := http.StatusOK, gin.H{"seatIds": req.SeatIds}
	if err := apply(st, session, req.SeatIds); err != nil {
		status, body = statusFor(err), gin.H{"error": err.Error()}
	} else {
		body["heldUntil"] = s.now().Add(s.ttl)
	}
	if key != "" {
		s.replays[session+"/"+key] = replay{status: status, body: body, expires: s.now().Add(s.ttl)}
	}
	c.JSON(status, body)
}

// holdLocked holds every id or none of them.
func (s *Server) holdLocked(st *showtime, session string, ids []int64) error {
	if len(ids) == 0 {
		return errNoSeats
	}
	if err := checkCouples(st, ids); err != nil {
		return err
	}
	for _, id := range ids {
		seat := st.seats[id]
		if seat.Status == model.SeatSold {
			return fmt.Errorf("%w: %s", errSeatSold, seat.Label())
		}
		if h, ok := st.holds[id]; ok && h.session != session {
			return fmt.Errorf("%w: %s", errSeatTaken, seat.Label())
		}
	}
	expires := s.now().Add(s.ttl)
	for _, id := range ids {
		st.holds[id] = hold{session: session, expires: expires}
	}
	return nil
}

// checkCouples rejects unknown ids and any request naming only part of a pair.
func checkCouples(st *showtime, ids []int64) error {
	requested := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if _, ok := st.seats[id]; !ok {
			return fmt.Errorf("%w: %d", errUnknownSeat, id)
		}
		requested[id] = true
	}
	for _, id := range ids {
		seat := st.seats[id]
		pid := seat.PairID()
		if !seat.Couple || pid == "" {
			continue
		}
		for otherID, other := range st.seats {
			if other.PairID() == pid && !requested[otherID] {
				return fmt.Errorf("%w: %s", errSplitCouple, seat.Label())
			}
		}
	}
	return nil
}

func (s *Server) expireLocked(st *showtime) {
	now := s.now()
	for id, h := range st.holds {
		if !now.Before(h.expires) {
			delete(st.holds, id)
		}
	}
}

func (s *Server) expireReplaysLocked() {
	now := s.now()
	for key, r := range s.replays {
		if !now.Before(r.expires) {
			delete(s.replays, key)
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errSeatTaken), errors.Is(err, errSeatSold):
		return http.StatusConflict
	case errors.Is(err, errUnknownSeat), errors.Is(err, errSplitCouple), errors.Is(err, errNoSeats):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
