package questions

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/dstadnik/truefalse/internal/models"
)

const refillBatchSize = 500

// PostgresProvider streams random questions from a Postgres table. A single
// producer goroutine keeps a bounded buffer filled so Next never touches the
// database on the hot path.
type PostgresProvider struct {
	pool   *pgxpool.Pool
	buffer chan models.Question
}

// NewPostgresProvider starts the refill producer. capacity is the size of
// the in-flight question buffer.
func NewPostgresProvider(ctx context.Context, pool *pgxpool.Pool, capacity int) *PostgresProvider {
	p := &PostgresProvider{
		pool:   pool,
		buffer: make(chan models.Question, capacity),
	}
	go p.produce(ctx)
	return p
}

func (p *PostgresProvider) produce(ctx context.Context) {
	for {
		rows, err := p.pool.Query(ctx,
			`SELECT id, text, answer FROM questions ORDER BY RANDOM() LIMIT $1`, refillBatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("question refill query failed")
			continue
		}
		batch := make([]models.Question, 0, refillBatchSize)
		for rows.Next() {
			var q models.Question
			if err := rows.Scan(&q.ID, &q.Text, &q.Answer); err != nil {
				log.Error().Err(err).Msg("scanning question row")
				continue
			}
			batch = append(batch, q)
		}
		rows.Close()
		if len(batch) == 0 {
			log.Warn().Msg("questions table is empty, stopping refill")
			close(p.buffer)
			return
		}
		for _, q := range batch {
			select {
			case p.buffer <- q:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Next returns up to n buffered questions. It returns fewer when the source
// has dried up and an error only when the context ends first.
func (p *PostgresProvider) Next(ctx context.Context, n int) ([]models.Question, error) {
	qs := make([]models.Question, 0, n)
	for i := 0; i < n; i++ {
		select {
		case q, ok := <-p.buffer:
			if !ok {
				return qs, nil
			}
			qs = append(qs, q)
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for questions: %w", ctx.Err())
		}
	}
	return qs, nil
}
