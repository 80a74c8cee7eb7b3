package jobs

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
	"github.com/rs/zerolog/log"
)

// periodic runs work once on Start and then on every tick until Stop.
type periodic struct {
	name   string
	ticker ticker.Ticker
	work   func()
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func newPeriodic(name string, t ticker.Ticker, work func()) *periodic {
	return &periodic{
		name:   name,
		ticker: t,
		work:   work,
		done:   make(chan struct{}),
	}
}

func (p *periodic) Start() {
	p.ticker.Resume()
	p.wg.Add(1)
	go p.run()
	log.Info().Str("job", p.name).Msg("job started")
}

func (p *periodic) Stop() {
	p.once.Do(func() {
		close(p.done)
		p.wg.Wait()
		p.ticker.Stop()
		log.Info().Str("job", p.name).Msg("job stopped")
	})
}

func (p *periodic) run() {
	defer p.wg.Done()

	p.work()

	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.Ticks():
			p.work()
		}
	}
}

func newTicker(interval time.Duration) ticker.Ticker {
	return ticker.New(interval)
}
