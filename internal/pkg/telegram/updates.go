// Copyright 2025 Gatehouse Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telegram

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/go-gatehouse/gatehouse/internal/gate/consts"
	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/go-gatehouse/gatehouse/pkg/safe"
)

// pollErrorBackoff is the wait after a failed getUpdates call.
const pollErrorBackoff = 3 * time.Second

// Poller long-polls getUpdates and feeds received updates into a
// channel. The confirmed offset is persisted in redis so a restart
// resumes where the previous process stopped instead of replaying.
type Poller struct {
	client  *Client
	rdb     redis.UniversalClient
	updates chan *Update
	cancel  context.CancelFunc
	done    chan struct{}
	timeout int
}

// NewPoller creates an update poller. pollTimeoutSec is the long-poll
// hold passed to getUpdates.
func NewPoller(client *Client, rdb redis.UniversalClient, pollTimeoutSec int) *Poller {
	if pollTimeoutSec <= 0 {
		pollTimeoutSec = 30
	}
	return &Poller{
		client:  client,
		rdb:     rdb,
		updates: make(chan *Update, 128),
		done:    make(chan struct{}),
		timeout: pollTimeoutSec,
	}
}

// Updates returns the receive side of the update stream. The channel is
// closed when the poller stops.
func (p *Poller) Updates() <-chan *Update {
	return p.updates
}

// Start begins polling on its own goroutine.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	safe.Go(func() {
		p.run(ctx)
	})
}

// Stop cancels polling and waits for the loop to exit.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	defer close(p.updates)

	offset := p.loadOffset(ctx)
	log.Infow("update poller started", "offset", offset, "pollTimeout", p.timeout)

	for {
		if ctx.Err() != nil {
			return
		}

		// chat_member updates arrive only when explicitly requested.
		updates, err := p.client.GetUpdates(ctx, offset, p.timeout, []string{"message", "chat_member"})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnw("getUpdates failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollErrorBackoff):
			}
			continue
		}

		for i := range updates {
			u := updates[i]
			select {
			case p.updates <- &u:
			case <-ctx.Done():
				return
			}
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
		}

		if len(updates) > 0 {
			p.saveOffset(ctx, offset)
		}
	}
}

func (p *Poller) loadOffset(ctx context.Context) int64 {
	if p.rdb == nil {
		return 0
	}
	offset, err := p.rdb.Get(ctx, consts.RedisKeyUpdateOffset).Int64()
	if err != nil {
		if err != redis.Nil {
			log.Warnw("failed to load update offset", "error", err)
		}
		return 0
	}
	return offset
}

func (p *Poller) saveOffset(ctx context.Context, offset int64) {
	if p.rdb == nil {
		return
	}
	if err := p.rdb.Set(ctx, consts.RedisKeyUpdateOffset, offset, 0).Err(); err != nil {
		log.Warnw("failed to save update offset", "offset", offset, "error", err)
	}
}
