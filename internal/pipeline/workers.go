package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"signalflow/models"
)

// Run starts the bounded worker pool and blocks until ctx is cancelled.
// Messages are sharded to workers by channel id, so signals from one channel
// are processed strictly in arrival order while channels are independent.
func (p *Pipeline) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i, q := range p.queues {
		wg.Add(1)
		go func(worker int, queue <-chan models.Message) {
			defer wg.Done()
			p.worker(ctx, worker, queue)
		}(i, q)
	}
	wg.Wait()
	close(p.decisions)
}

func (p *Pipeline) worker(ctx context.Context, id int, queue <-chan models.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-queue:
			dec, err := p.Process(ctx, msg)
			if err != nil {
				p.logger.Error().Err(err).Int("worker", id).Str("channel_id", msg.ChannelID).Msg("Pipeline error")
				continue
			}
			select {
			case p.decisions <- dec:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Enqueue places a message on its channel's worker queue
func (p *Pipeline) Enqueue(ctx context.Context, msg models.Message) error {
	queue := p.queues[shard(msg.ChannelID, len(p.queues))]
	select {
	case queue <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue: %w", ctx.Err())
	}
}

// Decisions exposes the stream of processed outcomes. The channel closes
// when Run returns.
func (p *Pipeline) Decisions() <-chan *models.Decision {
	return p.decisions
}

func shard(channelID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(channelID))
	return int(h.Sum32() % uint32(n))
}
