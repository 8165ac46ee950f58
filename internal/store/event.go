package store

import (
	"database/sql"
	"time"

	"github.com/ayusman/cvfighter/internal/gesture"
)

// EventRecord is a confirmed gesture as stored in history.
type EventRecord struct {
	ID         int64           `json:"id"`
	Gesture    gesture.Gesture `json:"gesture"`
	Confidence float64         `json:"confidence"`
	FrameTime  time.Duration   `json:"frame_time"`
	Latency    time.Duration   `json:"latency"`
	CreatedAt  time.Time       `json:"created_at"`
}

// EventRepository records gesture history.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Record inserts a confirmed event with its capture-to-confirmation latency.
func (r *EventRepository) Record(ev gesture.Event, latency time.Duration) (*EventRecord, error) {
	rec := &EventRecord{
		Gesture:    ev.Gesture,
		Confidence: ev.Confidence,
		FrameTime:  ev.Timestamp,
		Latency:    latency,
		CreatedAt:  time.Now(),
	}

	result, err := r.db.Exec(
		`INSERT INTO gesture_events (gesture, confidence, frame_ts_ms, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.Gesture.String(), ev.Confidence, ev.TimestampMS(),
		float64(latency)/float64(time.Millisecond), rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Recent returns up to limit events, newest first.
func (r *EventRepository) Recent(limit int) ([]*EventRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, gesture, confidence, frame_ts_ms, latency_ms, created_at
		 FROM gesture_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*EventRecord
	for rows.Next() {
		rec := &EventRecord{}
		var name string
		var frameMs int64
		var latencyMs float64

		if err := rows.Scan(&rec.ID, &name, &rec.Confidence, &frameMs, &latencyMs, &rec.CreatedAt); err != nil {
			return nil, err
		}

		g, err := gesture.ParseGesture(name)
		if err != nil {
			return nil, err
		}
		rec.Gesture = g
		rec.FrameTime = time.Duration(frameMs) * time.Millisecond
		rec.Latency = time.Duration(latencyMs * float64(time.Millisecond))
		events = append(events, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// CountByGesture returns how many times each gesture was confirmed.
func (r *EventRepository) CountByGesture() (map[gesture.Gesture]int, error) {
	rows, err := r.db.Query(`SELECT gesture, COUNT(*) FROM gesture_events GROUP BY gesture`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[gesture.Gesture]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		g, err := gesture.ParseGesture(name)
		if err != nil {
			return nil, err
		}
		counts[g] = n
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

// Prune keeps only the newest keep events and returns how many were removed.
func (r *EventRepository) Prune(keep int) (int64, error) {
	result, err := r.db.Exec(
		`DELETE FROM gesture_events WHERE id NOT IN
		 (SELECT id FROM gesture_events ORDER BY id DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
