// Package broker 通过本机交易客户端的 websocket 桥接口实现下单网关。
// 协议为 JSON 帧：请求带自增 seq，应答按 seq 回配；
// 委托、成交等回报由客户端主动推送，带 event 字段。
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"yfollow/internal/application/port"
	"yfollow/internal/domain"
)

var ErrNotConnected = errors.New("broker bridge not connected")

type Bridge struct {
	wsURL   string
	timeout time.Duration
	sink    port.CallbackSink

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	seq     atomic.Int64
	pending sync.Map // seq -> chan responseFrame

	done chan struct{}
	once sync.Once
}

func New(wsURL string, timeout time.Duration, sink port.CallbackSink) *Bridge {
	if sink == nil {
		sink = port.NopSink{}
	}
	return &Bridge{
		wsURL:   wsURL,
		timeout: timeout,
		done:    make(chan struct{}),
		sink:    sink,
	}
}

type requestFrame struct {
	Seq    int64           `json:"seq"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type responseFrame struct {
	Seq   int64           `json:"seq"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

// Connect 建立到交易客户端的连接并启动读循环。
// 连接断开后读循环按退避自动重连，期间的请求直接报错。
func (b *Bridge) Connect(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(cctx, b.wsURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial broker bridge: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	log.Info().Str("url", b.wsURL).Msg("broker bridge connected")
	go b.run(ctx)
	return nil
}

func (b *Bridge) run(ctx context.Context) {
	backoff := 500 * time.Millisecond
	maxBackoff := 10 * time.Second

	for {
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()

		if conn != nil {
			err := b.readLoop(conn)
			_ = conn.Close()
			b.mu.Lock()
			b.conn = nil
			b.mu.Unlock()
			b.failPending(ErrNotConnected)
			b.sink.OnDisconnected()

			select {
			case <-b.done:
				return
			default:
			}
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("broker bridge disconnected, reconnecting")
		}

		select {
		case <-b.done:
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, b.wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("broker bridge dial failed")
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}
		backoff = 500 * time.Millisecond
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		log.Info().Str("url", b.wsURL).Msg("broker bridge reconnected")
	}
}

func (b *Bridge) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame responseFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Error().Err(err).Msg("broker frame unmarshal failed")
			continue
		}
		if frame.Event != "" {
			b.dispatchPush(frame)
			continue
		}
		if ch, ok := b.pending.LoadAndDelete(frame.Seq); ok {
			ch.(chan responseFrame) <- frame
		}
	}
}

func (b *Bridge) dispatchPush(frame responseFrame) {
	switch frame.Event {
	case "on_stock_order":
		var wo wireOrder
		if err := json.Unmarshal(frame.Data, &wo); err == nil {
			b.sink.OnStockOrder(wo.toDomain())
		}
	case "on_stock_trade":
		var wt wireTrade
		if err := json.Unmarshal(frame.Data, &wt); err == nil {
			b.sink.OnStockTrade(wt.toDomain())
		}
	case "on_order_error":
		var we struct {
			OrderID int64  `json:"order_id"`
			ErrorID int    `json:"error_id"`
			ErrMsg  string `json:"error_msg"`
		}
		if err := json.Unmarshal(frame.Data, &we); err == nil {
			b.sink.OnOrderError(we.OrderID, we.ErrorID, we.ErrMsg)
		}
	case "on_disconnected":
		b.sink.OnDisconnected()
	default:
		log.Warn().Str("event", frame.Event).Msg("unknown push event")
	}
}

func (b *Bridge) failPending(err error) {
	b.pending.Range(func(k, v any) bool {
		b.pending.Delete(k)
		close(v.(chan responseFrame))
		return true
	})
	_ = err
}

func (b *Bridge) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	var raw json.RawMessage
	if params != nil {
		bts, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		raw = bts
	}

	seq := b.seq.Add(1)
	ch := make(chan responseFrame, 1)
	b.pending.Store(seq, ch)
	defer b.pending.Delete(seq)

	b.writeMu.Lock()
	err := conn.WriteJSON(requestFrame{Seq: seq, Method: method, Params: raw})
	b.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	timeout := b.timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("broker call %s timed out", method)
	case frame, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		if frame.Error != nil {
			return nil, fmt.Errorf("broker call %s: [%d] %s", method, frame.Error.Code, frame.Error.Msg)
		}
		return frame.Data, nil
	}
}

func (b *Bridge) QueryAsset(ctx context.Context, accountID string) (*domain.AssetSnapshot, error) {
	data, err := b.call(ctx, "query_stock_asset", map[string]string{"account_id": accountID})
	if err != nil {
		return nil, err
	}
	var wa wireAsset
	if err := json.Unmarshal(data, &wa); err != nil {
		return nil, err
	}
	snap := wa.toDomain()
	snap.AccountID = accountID
	return &snap, nil
}

func (b *Bridge) QueryPositions(ctx context.Context, accountID string) ([]domain.Position, error) {
	data, err := b.call(ctx, "query_stock_positions", map[string]string{"account_id": accountID})
	if err != nil {
		return nil, err
	}
	var wps []wirePosition
	if err := json.Unmarshal(data, &wps); err != nil {
		return nil, err
	}
	out := make([]domain.Position, 0, len(wps))
	for _, wp := range wps {
		out = append(out, wp.toDomain())
	}
	return out, nil
}

func (b *Bridge) QueryOrders(ctx context.Context, accountID string) ([]domain.Order, error) {
	data, err := b.call(ctx, "query_stock_orders", map[string]string{"account_id": accountID})
	if err != nil {
		return nil, err
	}
	var wos []wireOrder
	if err := json.Unmarshal(data, &wos); err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(wos))
	for _, wo := range wos {
		out = append(out, wo.toDomain())
	}
	return out, nil
}

func (b *Bridge) GetTick(ctx context.Context, code string) (*domain.Tick, error) {
	data, err := b.call(ctx, "get_tick", map[string]string{"stock_code": code})
	if err != nil {
		return nil, err
	}
	var wt wireTick
	if err := json.Unmarshal(data, &wt); err != nil {
		return nil, err
	}
	t := wt.toDomain()
	t.StockCode = code
	return &t, nil
}

func (b *Bridge) GetInstrumentDetail(ctx context.Context, code string) (*domain.InstrumentDetail, error) {
	data, err := b.call(ctx, "get_instrument_detail", map[string]string{"stock_code": code})
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	d := domain.InstrumentDetail{StockCode: code}
	// 不同版本客户端手数字段名不一致，逐个探测
	for _, key := range []string{"BoardLot", "boardLot", "lotSize", "BoardLotSize"} {
		if raw, ok := m[key]; ok {
			var lot int64
			if json.Unmarshal(raw, &lot) == nil && lot > 0 {
				d.BoardLot = lot
				break
			}
		}
	}
	if raw, ok := m["PriceTick"]; ok {
		_ = json.Unmarshal(raw, &d.PriceTick)
	}
	return &d, nil
}

func (b *Bridge) OrderStockAsync(ctx context.Context, accountID, code string, side domain.OrderSide,
	volume int64, price float64, remark, tag string) (int64, error) {
	data, err := b.call(ctx, "order_stock_async", map[string]any{
		"account_id":    accountID,
		"stock_code":    code,
		"order_type":    int(side),
		"order_volume":  volume,
		"price_type":    11, // 限价
		"price":         price,
		"strategy_name": tag,
		"order_remark":  remark,
	})
	if err != nil {
		return -1, err
	}
	var seq int64
	if err := json.Unmarshal(data, &seq); err != nil {
		return -1, err
	}
	return seq, nil
}

func (b *Bridge) CancelOrderAsync(ctx context.Context, accountID, sysID string) (int64, error) {
	data, err := b.call(ctx, "cancel_order_stock_sysid_async", map[string]any{
		"account_id": accountID,
		"sys_id":     sysID,
	})
	if err != nil {
		return -1, err
	}
	var seq int64
	if err := json.Unmarshal(data, &seq); err != nil {
		return -1, err
	}
	return seq, nil
}

func (b *Bridge) Close() error {
	b.once.Do(func() { close(b.done) })
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		err := b.conn.Close()
		b.conn = nil
		return err
	}
	return nil
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

var _ port.Gateway = (*Bridge)(nil)
