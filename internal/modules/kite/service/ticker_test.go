package service

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putInt32(b []byte, off int, v int32) {
	binary.BigEndian.PutUint32(b[off:off+4], uint32(v))
}

func fullPacket(token int32, ltp int32, ts int64) []byte {
	p := make([]byte, fullPacketLen)
	putInt32(p, 0, token)
	putInt32(p, 4, ltp)
	putInt32(p, 8, 10)     // last qty
	putInt32(p, 12, 10000) // avg trade price
	putInt32(p, 16, 500000)
	putInt32(p, 60, int32(ts))

	// bid 100.45 x 100 (3 заявки), ask 100.55 x 50
	depth := 64
	putInt32(p, depth, 100)
	putInt32(p, depth+4, 10045)
	binary.BigEndian.PutUint16(p[depth+8:depth+10], 3)

	ask := depth + 5*12
	putInt32(p, ask, 50)
	putInt32(p, ask+4, 10055)
	binary.BigEndian.PutUint16(p[ask+8:ask+10], 1)
	return p
}

func frame(packets ...[]byte) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, uint16(len(packets)))
	for _, p := range packets {
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(p)))
		out = append(out, l[:]...)
		out = append(out, p...)
	}
	return out
}

func TestParseBinaryFrameFullMode(t *testing.T) {
	ts := time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC).Unix()
	msg := frame(fullPacket(738561, 10050, ts))

	ticks := parseBinaryFrame(msg)
	require.Len(t, ticks, 1)

	tick := ticks[0]
	assert.Equal(t, "738561", tick.InstrumentID)
	assert.InDelta(t, 100.50, tick.LastPrice, 1e-9)
	assert.Equal(t, int64(10), tick.LastQty)
	assert.InDelta(t, 100.0, tick.AvgTradePrice, 1e-9)
	assert.Equal(t, int64(500000), tick.DayVolume)
	assert.Equal(t, ts, tick.Timestamp.Unix())

	require.NotNil(t, tick.Depth)
	bid, ok := tick.Depth.BestBid()
	require.True(t, ok)
	assert.InDelta(t, 100.45, bid.Price, 1e-9)
	assert.Equal(t, int64(100), bid.Quantity)
	assert.Equal(t, 3, bid.Orders)

	ask, ok := tick.Depth.BestAsk()
	require.True(t, ok)
	assert.InDelta(t, 100.55, ask.Price, 1e-9)
}

func TestParseBinaryFrameLTPMode(t *testing.T) {
	p := make([]byte, ltpPacketLen)
	putInt32(p, 0, 123)
	putInt32(p, 4, 25000)

	ticks := parseBinaryFrame(frame(p))
	require.Len(t, ticks, 1)
	assert.Equal(t, "123", ticks[0].InstrumentID)
	assert.InDelta(t, 250.0, ticks[0].LastPrice, 1e-9)
	assert.Nil(t, ticks[0].Depth)
	// биржевого времени в LTP-пакете нет, ставим своё
	assert.False(t, ticks[0].Timestamp.IsZero())
}

func TestParseBinaryFrameMultiplePackets(t *testing.T) {
	ts := time.Now().Unix()
	msg := frame(fullPacket(1, 100, ts), fullPacket(2, 200, ts))

	ticks := parseBinaryFrame(msg)
	require.Len(t, ticks, 2)
	assert.Equal(t, "1", ticks[0].InstrumentID)
	assert.Equal(t, "2", ticks[1].InstrumentID)
}

func TestParseBinaryFrameTruncated(t *testing.T) {
	msg := frame(fullPacket(1, 100, time.Now().Unix()))
	// обрезанный фрейм не должен паниковать
	ticks := parseBinaryFrame(msg[:20])
	assert.Empty(t, ticks)
}

func TestParseBinaryFrameDropsZeroPrice(t *testing.T) {
	p := make([]byte, ltpPacketLen)
	putInt32(p, 0, 123)
	putInt32(p, 4, 0)

	assert.Empty(t, parseBinaryFrame(frame(p)))
}
