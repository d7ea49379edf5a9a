package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"backend-fieldops/internal/db"
	"backend-fieldops/internal/gps"
	"backend-fieldops/internal/routing"
	"backend-fieldops/internal/shared/apperr"
	"backend-fieldops/internal/shared/geo"
	"backend-fieldops/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Authorizer decides whether a caller may act on a session. Satisfied by
// the auth service.
type Authorizer interface {
	IsOwnerOrOverseer(ctx context.Context, callerID, ownerID string) (bool, error)
	IsOverseer(ctx context.Context, callerID string) (bool, error)
}

// RouteProvider computes the final distance for a closed session.
// Satisfied by the routing cache.
type RouteProvider interface {
	GetOrCompute(ctx context.Context, samples []gps.Sample, mode routing.TravelMode) routing.RouteResult
}

// GeometryProvider computes distance without external services. Used by
// force-close, which must work even when every routing tier is down.
type GeometryProvider interface {
	LocalOnly(points []geo.Point) routing.RouteResult
}

// Options are the ingestion tunables. Zero values fall back to the gps
// package defaults.
type Options struct {
	MaxAccuracyM       float64
	MinPointDistanceKm float64
	MaxBatchSize       int
	ChunkSize          int
}

const (
	defaultMaxBatchSize = 5000
	defaultChunkSize    = 500

	maxSessionAge = 24 * time.Hour
)

func (o Options) withDefaults() Options {
	if o.MaxAccuracyM <= 0 {
		o.MaxAccuracyM = gps.DefaultMaxAccuracyM
	}
	if o.MinPointDistanceKm <= 0 {
		o.MinPointDistanceKm = gps.DefaultMinPointDistanceKm
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = defaultMaxBatchSize
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = defaultChunkSize
	}
	return o
}

// Service owns the session lifecycle: check-in, coordinate ingestion,
// check-out and force-close. Writes to one session are serialized by a
// per-session mutex; different sessions proceed in parallel.
type Service struct {
	db       db.Querier
	authz    Authorizer
	routes   RouteProvider
	geometry GeometryProvider
	hub      *stream.Hub
	logger   *zap.Logger
	opts     Options
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(querier db.Querier, authz Authorizer, routes RouteProvider, geometry GeometryProvider, hub *stream.Hub, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       querier,
		authz:    authz,
		routes:   routes,
		geometry: geometry,
		hub:      hub,
		logger:   logger,
		opts:     opts.withDefaults(),
		now:      time.Now,
		locks:    map[string]*sync.Mutex{},
	}
}

func (s *Service) lockSession(id string) func() {
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// forgetSession drops the per-session lock entry. Closed sessions reject
// writes outright, so they no longer need serialization and keeping the
// mutex around would leak one entry per session over the process lifetime.
func (s *Service) forgetSession(id string) {
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
}

// Open creates a session at check-in. A caller-supplied check-in time
// must not be in the future; one older than 24h is accepted with a
// warning. An optional start coordinate becomes the first GPS log.
func (s *Service) Open(ctx context.Context, ownerID string, req OpenRequest) (OpenResult, error) {
	if ownerID == "" {
		return OpenResult{}, apperr.Validation("owner required")
	}

	now := s.now()
	checkIn := now
	var warnings []string
	if req.CheckIn != nil {
		if req.CheckIn.After(now) {
			return OpenResult{}, apperr.Validation("check-in cannot be in the future")
		}
		checkIn = *req.CheckIn
		if now.Sub(checkIn) > maxSessionAge {
			warnings = append(warnings, "check-in is more than 24h in the past")
		}
	}

	sess := Session{ID: uuid.NewString(), OwnerID: ownerID, CheckIn: checkIn}

	var start *gps.Sample
	if req.Start != nil {
		sample, ok := gps.Sanitize(*req.Start)
		if ok && gps.Validate(sample, s.opts.MaxAccuracyM).Valid {
			start = &sample
			sess.StartLat, sess.StartLng = &sample.Lat, &sample.Lng
			sess.LastLat, sess.LastLng = &sample.Lat, &sample.Lng
			sess.CoordinateCount = 1
		} else {
			warnings = append(warnings, "start coordinate rejected")
		}
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO tracking_sessions (id, owner_id, check_in, start_lat, start_lng, last_lat, last_lng, coordinate_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at
	`, sess.ID, sess.OwnerID, sess.CheckIn, sess.StartLat, sess.StartLng, sess.LastLat, sess.LastLng, sess.CoordinateCount)
	if err := row.Scan(&sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return OpenResult{}, err
	}

	if start != nil {
		recordedAt := start.Timestamp
		if recordedAt.IsZero() {
			recordedAt = checkIn
		}
		if err := s.insertLog(ctx, sess.ID, *start, recordedAt); err != nil {
			return OpenResult{}, err
		}
	}

	s.logger.Info("session opened",
		zap.String("session_id", sess.ID),
		zap.String("owner_id", ownerID),
		zap.Time("check_in", checkIn))
	return OpenResult{Session: sess, Warnings: warnings}, nil
}

// Ingest appends a batch of raw coordinates to an open session. Bad
// coordinates are skipped and counted, never a batch failure. Distance
// is accumulated incrementally from the session's last known point, so
// the running total never decreases and is never recomputed.
func (s *Service) Ingest(ctx context.Context, sessionID, callerID string, raws []gps.RawSample) (IngestResult, error) {
	if len(raws) == 0 {
		return IngestResult{}, apperr.Validation("no coordinates supplied")
	}
	if len(raws) > s.opts.MaxBatchSize {
		return IngestResult{}, apperr.Validation("batch exceeds %d coordinates", s.opts.MaxBatchSize)
	}

	unlock := s.lockSession(sessionID)
	defer unlock()

	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return IngestResult{}, err
	}
	if err := s.requireOwnerOrOverseer(ctx, callerID, sess.OwnerID); err != nil {
		return IngestResult{}, err
	}
	if sess.Closed() {
		return IngestResult{}, apperr.Conflict("session %s is closed", sessionID)
	}

	var samples []gps.Sample
	for _, raw := range raws {
		sample, ok := gps.Sanitize(raw)
		if !ok || !gps.Validate(sample, s.opts.MaxAccuracyM).Valid {
			continue
		}
		samples = append(samples, sample)
	}
	samples = gps.FilterByAccuracy(samples, s.opts.MaxAccuracyM)
	samples = gps.SortByTimestamp(samples)
	samples = gps.RemoveNearDuplicates(samples, s.opts.MinPointDistanceKm)

	var (
		accepted int
		addedKm  float64
		lastLat  = sess.LastLat
		lastLng  = sess.LastLng
	)
	for start := 0; start < len(samples); start += s.opts.ChunkSize {
		end := start + s.opts.ChunkSize
		if end > len(samples) {
			end = len(samples)
		}
		for _, p := range samples[start:end] {
			if lastLat != nil && lastLng != nil {
				d := geo.HaversineKm(*lastLat, *lastLng, p.Lat, p.Lng)
				if d < s.opts.MinPointDistanceKm {
					continue
				}
				addedKm += d
			}

			recordedAt := p.Timestamp
			if recordedAt.IsZero() {
				recordedAt = s.now()
			}
			if err := s.insertLog(ctx, sessionID, p, recordedAt); err != nil {
				return IngestResult{}, err
			}

			lat, lng := p.Lat, p.Lng
			lastLat, lastLng = &lat, &lng
			accepted++

			if s.hub != nil {
				s.hub.BroadcastUpdate(stream.Update{
					SessionID:  sessionID,
					Lat:        p.Lat,
					Lng:        p.Lng,
					DistanceKm: sess.TotalDistanceKm + addedKm,
					RecordedAt: recordedAt,
				})
			}
		}
	}

	if accepted > 0 {
		_, err = s.db.Exec(ctx, `
			UPDATE tracking_sessions
			SET total_distance_km = total_distance_km + $2,
			    coordinate_count = coordinate_count + $3,
			    last_lat = $4, last_lng = $5, updated_at = $6
			WHERE id = $1
		`, sessionID, addedKm, accepted, *lastLat, *lastLng, s.now())
		if err != nil {
			return IngestResult{}, err
		}
	}

	res := IngestResult{
		Accepted:        accepted,
		Skipped:         len(raws) - accepted,
		DistanceAddedKm: addedKm,
	}
	if res.Skipped > 0 {
		res.Warnings = append(res.Warnings, "some coordinates were skipped as invalid or duplicate")
	}
	s.logger.Info("coordinates ingested",
		zap.String("session_id", sessionID),
		zap.Int("accepted", accepted),
		zap.Int("skipped", res.Skipped),
		zap.Float64("distance_added_km", addedKm))
	return res, nil
}

// Close checks a session out. Re-closing an already closed session with
// a matching payload returns the stored result; a mismatching payload is
// a conflict. The final distance runs through the routing chain over the
// full ordered point set. The daily aggregate update is best effort and
// never fails the close.
func (s *Service) Close(ctx context.Context, sessionID, callerID string, req CloseRequest) (CloseResult, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return CloseResult{}, err
	}
	if err := s.requireOwnerOrOverseer(ctx, callerID, sess.OwnerID); err != nil {
		return CloseResult{}, err
	}

	if sess.Closed() {
		s.forgetSession(sessionID)
		// An idempotent client retry carries no new data: no end
		// coordinate and either no checkout time or the stored one.
		// Anything else is a mismatching payload.
		if req.End == nil && (req.CheckOut == nil || req.CheckOut.Equal(*sess.CheckOut)) {
			return CloseResult{
				DistanceKm:      sess.TotalDistanceKm,
				DurationMinutes: sess.DurationMinutes,
				AvgSpeedKmh:     sess.AvgSpeedKmh,
				Method:          sess.Method,
			}, nil
		}
		return CloseResult{}, apperr.Conflict("session %s already closed", sessionID)
	}

	now := s.now()
	checkOut := now
	if req.CheckOut != nil {
		checkOut = *req.CheckOut
	}
	if !checkOut.After(sess.CheckIn) {
		return CloseResult{}, apperr.Validation("check-out must be after check-in")
	}

	var warnings []string
	if checkOut.Sub(sess.CheckIn) > maxSessionAge {
		warnings = append(warnings, "session duration exceeds 24h")
	}

	if req.End != nil {
		sample, ok := gps.Sanitize(*req.End)
		if ok && gps.Validate(sample, s.opts.MaxAccuracyM).Valid {
			recordedAt := sample.Timestamp
			if recordedAt.IsZero() {
				recordedAt = checkOut
			}
			if err := s.insertLog(ctx, sessionID, sample, recordedAt); err != nil {
				return CloseResult{}, err
			}
		} else {
			warnings = append(warnings, "end coordinate rejected")
		}
	}

	samples, err := s.loadSamples(ctx, sessionID)
	if err != nil {
		return CloseResult{}, err
	}

	route := s.routes.GetOrCompute(ctx, samples, req.mode())
	warnings = append(warnings, route.Warnings...)

	durationMin := checkOut.Sub(sess.CheckIn).Minutes()
	hours := durationMin / 60
	avgSpeed := 0.0
	if hours > 0 {
		avgSpeed = route.DistanceKm / hours
	}

	_, err = s.db.Exec(ctx, `
		UPDATE tracking_sessions
		SET check_out = $2, total_distance_km = $3, duration_minutes = $4,
		    avg_speed_kmh = $5, method = $6, updated_at = $7
		WHERE id = $1
	`, sessionID, checkOut, route.DistanceKm, durationMin, avgSpeed, route.Method, now)
	if err != nil {
		return CloseResult{}, err
	}

	if err := s.upsertDailyStats(ctx, sess.OwnerID, checkOut, route.DistanceKm, hours); err != nil {
		s.logger.Warn("daily aggregate update failed",
			zap.String("session_id", sessionID), zap.Error(err))
		warnings = append(warnings, "daily aggregate update failed")
	}

	s.forgetSession(sessionID)
	s.logger.Info("session closed",
		zap.String("session_id", sessionID),
		zap.Float64("distance_km", route.DistanceKm),
		zap.String("method", route.Method))
	return CloseResult{
		DistanceKm:      route.DistanceKm,
		DurationMinutes: durationMin,
		AvgSpeedKmh:     avgSpeed,
		Method:          route.Method,
		Warnings:        warnings,
	}, nil
}

// ForceClose is the overseer-only administrative path. Distance comes
// from local geometry alone so the operation works with every external
// routing service down. Force-closing an already closed session returns
// its stored state.
func (s *Service) ForceClose(ctx context.Context, sessionID, callerID, reason string) (ForceCloseResult, error) {
	ok, err := s.authz.IsOverseer(ctx, callerID)
	if err != nil {
		return ForceCloseResult{}, err
	}
	if !ok {
		return ForceCloseResult{}, apperr.Forbidden("force-close requires a supervisory role")
	}

	unlock := s.lockSession(sessionID)
	defer unlock()

	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return ForceCloseResult{}, err
	}
	if sess.Closed() {
		s.forgetSession(sessionID)
		return ForceCloseResult{DistanceKm: sess.TotalDistanceKm, Method: sess.Method}, nil
	}

	samples, err := s.loadSamples(ctx, sessionID)
	if err != nil {
		return ForceCloseResult{}, err
	}
	route := s.geometry.LocalOnly(gps.Points(samples))

	now := s.now()
	checkOut := now
	durationMin := checkOut.Sub(sess.CheckIn).Minutes()
	hours := durationMin / 60
	avgSpeed := 0.0
	if hours > 0 {
		avgSpeed = route.DistanceKm / hours
	}

	_, err = s.db.Exec(ctx, `
		UPDATE tracking_sessions
		SET check_out = $2, total_distance_km = $3, duration_minutes = $4,
		    avg_speed_kmh = $5, method = $6, close_reason = $7, updated_at = $8
		WHERE id = $1
	`, sessionID, checkOut, route.DistanceKm, durationMin, avgSpeed, route.Method, reason, now)
	if err != nil {
		return ForceCloseResult{}, err
	}

	if err := s.upsertDailyStats(ctx, sess.OwnerID, checkOut, route.DistanceKm, hours); err != nil {
		s.logger.Warn("daily aggregate update failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}

	s.forgetSession(sessionID)
	s.logger.Info("session force-closed",
		zap.String("session_id", sessionID),
		zap.String("caller_id", callerID),
		zap.String("reason", reason))
	return ForceCloseResult{DistanceKm: route.DistanceKm, Method: route.Method}, nil
}

// Get returns a session readable by its owner or an overseer.
func (s *Service) Get(ctx context.Context, sessionID, callerID string) (Session, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if err := s.requireOwnerOrOverseer(ctx, callerID, sess.OwnerID); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Points returns a session's GPS logs in recorded order.
func (s *Service) Points(ctx context.Context, sessionID, callerID string) ([]LogPoint, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnerOrOverseer(ctx, callerID, sess.OwnerID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, lat, lng, accuracy_m, speed_kmh, altitude_m, recorded_at, created_at
		FROM gps_logs WHERE session_id = $1
		ORDER BY recorded_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []LogPoint
	for rows.Next() {
		var p LogPoint
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Lat, &p.Lng, &p.AccuracyM, &p.SpeedKmh, &p.AltitudeM, &p.RecordedAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r CloseRequest) mode() routing.TravelMode {
	if r.Mode != "" {
		return r.Mode
	}
	return routing.ModeDriving
}

func (s *Service) requireOwnerOrOverseer(ctx context.Context, callerID, ownerID string) error {
	ok, err := s.authz.IsOwnerOrOverseer(ctx, callerID, ownerID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("caller may not access this session")
	}
	return nil
}

func (s *Service) getSession(ctx context.Context, sessionID string) (Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, owner_id, check_in, check_out, start_lat, start_lng, last_lat, last_lng,
		       total_distance_km, coordinate_count, COALESCE(duration_minutes, 0),
		       COALESCE(avg_speed_kmh, 0), COALESCE(method, ''), COALESCE(close_reason, ''),
		       created_at, updated_at
		FROM tracking_sessions WHERE id = $1
	`, sessionID)

	var sess Session
	err := row.Scan(&sess.ID, &sess.OwnerID, &sess.CheckIn, &sess.CheckOut,
		&sess.StartLat, &sess.StartLng, &sess.LastLat, &sess.LastLng,
		&sess.TotalDistanceKm, &sess.CoordinateCount, &sess.DurationMinutes,
		&sess.AvgSpeedKmh, &sess.Method, &sess.CloseReason,
		&sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, apperr.NotFound("session %s not found", sessionID)
	}
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *Service) insertLog(ctx context.Context, sessionID string, p gps.Sample, recordedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO gps_logs (session_id, lat, lng, accuracy_m, speed_kmh, altitude_m, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sessionID, p.Lat, p.Lng, p.AccuracyM, p.SpeedKmh, p.AltitudeM, recordedAt)
	return err
}

func (s *Service) loadSamples(ctx context.Context, sessionID string) ([]gps.Sample, error) {
	rows, err := s.db.Query(ctx, `
		SELECT lat, lng, recorded_at
		FROM gps_logs WHERE session_id = $1
		ORDER BY recorded_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []gps.Sample
	for rows.Next() {
		var p gps.Sample
		if err := rows.Scan(&p.Lat, &p.Lng, &p.Timestamp); err != nil {
			return nil, err
		}
		samples = append(samples, p)
	}
	return samples, rows.Err()
}

func (s *Service) upsertDailyStats(ctx context.Context, userID string, day time.Time, distanceKm, hours float64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO field_agent_daily_stats (user_id, day, distance_km, hours, session_count)
		VALUES ($1,$2,$3,$4,1)
		ON CONFLICT (user_id, day) DO UPDATE SET
			distance_km = field_agent_daily_stats.distance_km + EXCLUDED.distance_km,
			hours = field_agent_daily_stats.hours + EXCLUDED.hours,
			session_count = field_agent_daily_stats.session_count + 1
	`, userID, day.Format("2006-01-02"), distanceKm, hours)
	return err
}
