package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/tick-analytics/src/metrics"
	"github.com/jiaming2012/tick-analytics/src/models"
)

var ReconnectLimitErr = fmt.Errorf("reconnect attempts exhausted")

type BinanceConfig struct {
	URL                  string        `yaml:"url"`
	Symbols              []string      `yaml:"symbols"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	InitialBackoff       time.Duration `yaml:"initial_backoff"`
	MaxBackoff           time.Duration `yaml:"max_backoff"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
	Buffer               int           `yaml:"buffer"`
}

func (c BinanceConfig) withDefaults() BinanceConfig {
	if c.URL == "" {
		c.URL = "wss://fstream.binance.com/stream"
	}

	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}

	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}

	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}

	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}

	if c.Buffer <= 0 {
		c.Buffer = 4096
	}

	return c
}

// BinanceSource streams aggregated trades from the Binance futures combined stream.
type BinanceSource struct {
	cfg       BinanceConfig
	dialer    *websocket.Dialer
	connected atomic.Bool
	rnd       *rand.Rand
}

func NewBinanceSource(cfg BinanceConfig) *BinanceSource {
	return &BinanceSource{
		cfg:    cfg.withDefaults(),
		dialer: websocket.DefaultDialer,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *BinanceSource) Connected() bool {
	return s.connected.Load()
}

func (s *BinanceSource) streamURL() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("BinanceSource.streamURL: %w", err)
	}

	streams := make([]string, 0, len(s.cfg.Symbols))
	for _, sym := range s.cfg.Symbols {
		streams = append(streams, strings.ToLower(sym)+"@aggTrade")
	}

	q := u.Query()
	q.Set("streams", strings.Join(streams, "/"))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *BinanceSource) connect(ctx context.Context) (*websocket.Conn, error) {
	u, err := s.streamURL()
	if err != nil {
		return nil, err
	}

	log.Infof("connecting to %s", u)

	c, _, err := s.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("binance: dial: %w", err)
	}

	if c == nil {
		return nil, fmt.Errorf("binance: failed to connect to websocket server: connection is nil")
	}

	return c, nil
}

func (s *BinanceSource) Start(ctx context.Context) <-chan models.Tick {
	out := make(chan models.Tick, s.cfg.Buffer)

	go func() {
		defer close(out)
		defer s.setConnected(false)

		if err := s.run(ctx, out); err != nil {
			log.Errorf("binance: feed stopped: %v", err)
		}
	}()

	return out
}

func (s *BinanceSource) run(ctx context.Context, out chan<- models.Tick) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		c, err := s.connect(ctx)
		if err == nil {
			attempt = 0
			s.setConnected(true)
			err = s.read(ctx, c, out)
			s.setConnected(false)
			c.Close()
		}

		if ctx.Err() != nil {
			return nil
		}

		attempt++
		if attempt > s.cfg.MaxReconnectAttempts {
			return fmt.Errorf("binance: %v: %w", err, ReconnectLimitErr)
		}

		delay := backoffDelay(attempt, s.cfg.InitialBackoff, s.cfg.MaxBackoff, s.rnd.Float64())
		log.Warnf("binance: %v, reconnecting in %s (attempt %d/%d)", err, delay, attempt, s.cfg.MaxReconnectAttempts)
		metrics.FeedReconnectsTotal.Inc()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (s *BinanceSource) read(ctx context.Context, c *websocket.Conn, out chan<- models.Tick) error {
	stop := context.AfterFunc(ctx, func() {
		c.Close()
	})
	defer stop()

	for {
		c.SetReadDeadline(time.Now().UTC().Add(s.cfg.ReadTimeout))
		_, message, err := c.ReadMessage()
		if err != nil {
			return fmt.Errorf("ReadMessage(): %w", err)
		}

		tick, ok, err := parseAggTrade(message)
		if err != nil {
			log.Warnf("binance: dropping message: %v", err)
			continue
		}

		if !ok {
			continue
		}

		select {
		case out <- tick:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *BinanceSource) setConnected(v bool) {
	s.connected.Store(v)
	if v {
		metrics.FeedConnected.Set(1)
	} else {
		metrics.FeedConnected.Set(0)
	}
}

type binanceStreamDTO struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// All payload keys are declared; encoding/json otherwise folds "E" onto "e".
type binanceAggTradeDTO struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	AggTradeID   int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	TradeTime    int64  `json:"T"`
	BuyerMaker   bool   `json:"m"`
}

// parseAggTrade decodes a combined-stream aggTrade message. ok is false for other
// event types.
func parseAggTrade(message []byte) (tick models.Tick, ok bool, err error) {
	var envelope binanceStreamDTO
	if err = json.Unmarshal(message, &envelope); err != nil {
		return tick, false, fmt.Errorf("failed to unmarshal json: %w", err)
	}

	if len(envelope.Data) == 0 {
		return tick, false, nil
	}

	var dto binanceAggTradeDTO
	if err = json.Unmarshal(envelope.Data, &dto); err != nil {
		return tick, false, fmt.Errorf("failed to unmarshal aggTrade: %w", err)
	}

	if dto.EventType != "aggTrade" {
		return tick, false, nil
	}

	price, err := strconv.ParseFloat(dto.Price, 64)
	if err != nil {
		return tick, false, fmt.Errorf("price %q: %w", dto.Price, err)
	}

	qty, err := strconv.ParseFloat(dto.Quantity, 64)
	if err != nil {
		return tick, false, fmt.Errorf("quantity %q: %w", dto.Quantity, err)
	}

	return models.Tick{
		Symbol:    strings.ToUpper(dto.Symbol),
		Timestamp: time.UnixMilli(dto.TradeTime).UTC(),
		Price:     price,
		Quantity:  qty,
	}, true, nil
}

// backoffDelay doubles initial per attempt up to max, then scales it into [d/2, d)
// using jitter in [0, 1).
func backoffDelay(attempt int, initial, max time.Duration, jitter float64) time.Duration {
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if d > float64(max) || math.IsInf(d, 0) {
		d = float64(max)
	}

	return time.Duration(d/2 + d/2*jitter)
}
