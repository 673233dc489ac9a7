package db

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"ctgenie/ml"
)

// writeTimeout bounds one INSERT from the writer goroutine.
const writeTimeout = 5 * time.Second

// ErrQueueFull is returned when the writer has fallen behind. The entry is dropped.
var ErrQueueFull = errors.New("audit queue full")

type pendingPrediction struct {
	requestID  string
	features   ml.FeatureVector
	prediction *ml.Prediction
}

// Recorder puts prediction writes on a bounded queue so request handlers never
// wait on SQLite. Run drains the queue into the AuditLog.
type Recorder struct {
	log    *AuditLog
	queue  chan pendingPrediction
	logger *zap.Logger
}

// NewRecorder queues up to size entries for log.
func NewRecorder(log *AuditLog, size int, logger *zap.Logger) *Recorder {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		log:    log,
		queue:  make(chan pendingPrediction, size),
		logger: logger,
	}
}

// SavePrediction enqueues the record without blocking. ctx is not used for the
// write, which outlives the request.
func (r *Recorder) SavePrediction(_ context.Context, requestID string, features ml.FeatureVector, prediction *ml.Prediction) error {
	if prediction == nil {
		return errors.New("prediction required")
	}
	select {
	case r.queue <- pendingPrediction{requestID: requestID, features: features, prediction: prediction}:
		return nil
	default:
		return ErrQueueFull
	}
}

// RecentPredictions reads straight from the log. Queued entries are not visible yet.
func (r *Recorder) RecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	return r.log.RecentPredictions(ctx, limit)
}

// Pending reports how many entries wait for the writer.
func (r *Recorder) Pending() int {
	return len(r.queue)
}

// Run writes queued entries until ctx is done, then flushes what is already queued.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) write(entry pendingPrediction) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.log.SavePrediction(ctx, entry.requestID, entry.features, entry.prediction); err != nil {
		r.logger.Warn("audit write failed", zap.String("request_id", entry.requestID), zap.Error(err))
	}
}
