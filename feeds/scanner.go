package feeds

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// VENUE PRICE SCANNER - Websocket quote stream → Opportunity batches
// ═══════════════════════════════════════════════════════════════════════════════
//
// One reference producer for the engine's SubmitOpportunities intake. Keeps
// the latest quote per (token, venue) and emits an Opportunity whenever two
// venues disagree by more than the spread threshold.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	reconnectDelay = 5 * time.Second
	scanInterval   = 500 * time.Millisecond
)

// refTradeUSD is the notional used to express gross profit as trade-level
// USD; the saga re-derives the actual size from wallet and profit caps.
var refTradeUSD = decimal.NewFromInt(100)

// quoteMsg is the wire format of one venue quote
type quoteMsg struct {
	Token      string  `json:"token"`
	Venue      string  `json:"venue"`
	Chain      string  `json:"chain"`
	Price      string  `json:"price"`
	Volatility float64 `json:"volatility"`
}

type venueQuote struct {
	venue      types.Venue
	price      decimal.Decimal
	volatility float64
	at         time.Time
}

// Sink receives scanned opportunity batches
type Sink interface {
	SubmitOpportunities(batch []types.Opportunity)
}

// Scanner consumes a quote websocket and produces opportunities
type Scanner struct {
	mu sync.RWMutex

	url       string
	minSpread decimal.Decimal // relative spread threshold, e.g. 0.01
	sink      Sink

	quotes  map[string]map[string]venueQuote // token → venue key → quote
	stopCh  chan struct{}
	running bool
}

// NewScanner creates a scanner feeding the given sink
func NewScanner(url string, minSpread decimal.Decimal, sink Sink) *Scanner {
	return &Scanner{
		url:       url,
		minSpread: minSpread,
		sink:      sink,
		quotes:    make(map[string]map[string]venueQuote),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the websocket read loop and the scan loop
func (s *Scanner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.readLoop()
	go s.scanLoop()

	log.Info().Str("url", s.url).Msg("🔍 Venue scanner started")
}

// Stop halts both loops
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stopCh)
		s.running = false
	}
}

// readLoop maintains the websocket connection, reconnecting on failure
func (s *Scanner) readLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Scanner dial failed, retrying...")
			select {
			case <-s.stopCh:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		s.consume(conn)
		conn.Close()
	}
}

func (s *Scanner) consume(conn *websocket.Conn) {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Scanner read failed, reconnecting")
			return
		}

		var msg quoteMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		price, err := decimal.NewFromString(msg.Price)
		if err != nil || !price.IsPositive() {
			continue
		}

		venue := types.Venue{Name: msg.Venue, Chain: types.Chain(msg.Chain)}

		s.mu.Lock()
		byVenue, ok := s.quotes[msg.Token]
		if !ok {
			byVenue = make(map[string]venueQuote)
			s.quotes[msg.Token] = byVenue
		}
		byVenue[venue.Key()] = venueQuote{
			venue:      venue,
			price:      price,
			volatility: msg.Volatility,
			at:         time.Now(),
		}
		s.mu.Unlock()
	}
}

// scanLoop periodically pairs venue quotes into opportunities
func (s *Scanner) scanLoop() {
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if batch := s.scan(); len(batch) > 0 {
				s.sink.SubmitOpportunities(batch)
			}
		}
	}
}

// scan emits one opportunity per token: buy at the cheapest venue, sell at
// the dearest, when the spread clears the threshold.
func (s *Scanner) scan() []types.Opportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var batch []types.Opportunity

	for token, byVenue := range s.quotes {
		var low, high *venueQuote
		for key := range byVenue {
			q := byVenue[key]
			if now.Sub(q.at) > 10*time.Second {
				continue
			}
			if low == nil || q.price.LessThan(low.price) {
				qq := q
				low = &qq
			}
			if high == nil || q.price.GreaterThan(high.price) {
				qq := q
				high = &qq
			}
		}
		if low == nil || high == nil || low.venue.Key() == high.venue.Key() {
			continue
		}

		spread := high.price.Sub(low.price).Div(low.price)
		if spread.LessThan(s.minSpread) {
			continue
		}

		batch = append(batch, types.Opportunity{
			ID:           uuid.NewString(),
			Token:        token,
			SourceChain:  low.venue.Chain,
			TargetChain:  high.venue.Chain,
			SourceVenue:  low.venue,
			TargetVenue:  high.venue,
			BuyPrice:     low.price,
			SellPrice:    high.price,
			GrossProfit:  refTradeUSD.Mul(spread),
			Volatility:   (low.volatility + high.volatility) / 2,
			DiscoveredAt: now,
		})
	}

	return batch
}
