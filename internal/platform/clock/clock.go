// Package clock abstrae el tiempo para que el motor de grants, las
// proyecciones y el sweeper puedan testearse sin dormir.
//
// Producción inyecta Real(); los tests inyectan Fake() y controlan el
// avance con Advance.
package clock

import (
	"sort"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time

	// NewTicker entrega ticks en C cada d. Panic si d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker envuelve un ticker real o fake. C tiene capacidad 1: si el
// consumidor se atrasa, los ticks se descartan (igual que time.Ticker).
type Ticker struct {
	C <-chan time.Time

	stop func()
}

func (t *Ticker) Stop() { t.stop() }

// Real devuelve un Clock respaldado por el paquete time.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}

// FakeClock es determinístico: el tiempo sólo avanza con Advance/Set.
// Seguro para uso concurrente.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	next     time.Time
	interval time.Duration
	ch       chan time.Time
	stopped  bool
}

func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ft := &fakeTicker{
		next:     c.current.Add(d),
		interval: d,
		ch:       make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, ft)

	return &Ticker{
		C: ft.ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ft.stopped = true
		},
	}
}

// Tickers devuelve cuántos tickers activos hay. Útil en tests para
// esperar a que una goroutine haya registrado su ticker antes de Advance.
func (c *FakeClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance mueve el reloj d hacia adelante y dispara (sin bloquear) los
// tickers cuyo deadline quedó dentro del nuevo instante.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.fireLocked()
	c.mu.Unlock()
}

// Set fija el reloj en t. No retrocede tickers ya disparados.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.fireLocked()
	c.mu.Unlock()
}

func (c *FakeClock) fireLocked() {
	live := c.tickers[:0]
	for _, t := range c.tickers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	c.tickers = live

	sort.Slice(c.tickers, func(i, j int) bool {
		return c.tickers[i].next.Before(c.tickers[j].next)
	})

	for _, t := range c.tickers {
		for !t.next.After(c.current) {
			select {
			case t.ch <- t.next:
			default:
			}
			t.next = t.next.Add(t.interval)
		}
	}
}
