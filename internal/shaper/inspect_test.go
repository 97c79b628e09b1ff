package shaper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cakeQdisc = `qdisc cake 8001: root refcnt 2 bandwidth 241900Kbit besteffort triple-isolate nonat nowash no-ack-filter split-gso rtt 100ms raw overhead 0`

const tbfQdisc = `qdisc tbf 8003: root refcnt 2 rate 250Mbit burst 312500b lat 50ms`

const htbQdisc = `qdisc htb 1: root refcnt 2 r2q 10 default 0x1 direct_packets_stat 0 direct_qlen 1000`

const htbClass = `class htb 1:1 root prio 0 rate 241900Kbit ceil 241900Kbit burst 1599b cburst 1599b`

const defaultQdisc = `qdisc fq_codel 0: root refcnt 2 limit 10240p flows 1024 quantum 1514 target 5ms interval 100ms memory_limit 32Mb ecn drop_batch 64`

func TestParseQdiscCake(t *testing.T) {
	t.Parallel()

	inst, ok := ParseQdisc(cakeQdisc)
	require.True(t, ok)
	assert.Equal(t, "cake", inst.Discipline)
	assert.InDelta(t, 241.9, inst.RateMbps, 1e-9)
}

func TestParseQdiscTBF(t *testing.T) {
	t.Parallel()

	inst, ok := ParseQdisc(tbfQdisc)
	require.True(t, ok)
	assert.Equal(t, "tbf", inst.Discipline)
	assert.Equal(t, 250.0, inst.RateMbps)
}

func TestParseQdiscHTBHasNoRate(t *testing.T) {
	t.Parallel()

	inst, ok := ParseQdisc(htbQdisc)
	require.True(t, ok)
	assert.Equal(t, "htb", inst.Discipline)
	assert.Zero(t, inst.RateMbps)
}

func TestParseQdiscForeign(t *testing.T) {
	t.Parallel()

	_, ok := ParseQdisc(defaultQdisc)
	assert.False(t, ok)

	_, ok = ParseQdisc("")
	assert.False(t, ok)

	_, ok = ParseQdisc("Cannot find device \"eth9\"")
	assert.False(t, ok)
}

func TestParseHTBClassRate(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 241.9, ParseHTBClassRate(htbClass), 1e-9)
	assert.Zero(t, ParseHTBClassRate("class fq_codel :1 parent 8001:"))
	assert.Zero(t, ParseHTBClassRate(""))
}

func TestParseRateToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		tok  string
		want float64
		ok   bool
	}{
		{"241900Kbit", 241.9, true},
		{"250Mbit", 250, true},
		{"1Gbit", 1000, true},
		{"750bit", 0.00075, true},
		{"50ms", 0, false},
		{"fast", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseRateToken(tc.tok)
		assert.Equal(t, tc.ok, ok, tc.tok)
		if tc.ok {
			assert.InDelta(t, tc.want, got, 1e-9, tc.tok)
		}
	}
}

func TestInspectHTBQueriesClass(t *testing.T) {
	t.Parallel()

	rr := &recordRunner{outputs: map[string]string{
		"tc qdisc show dev eth0": htbQdisc,
		"tc class show dev eth0": htbClass,
	}}
	m := NewManager(rr)

	inst, ok, err := m.Inspect("eth0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "htb", inst.Discipline)
	assert.InDelta(t, 241.9, inst.RateMbps, 1e-9)
}

func TestInspectNothingInstalled(t *testing.T) {
	t.Parallel()

	rr := &recordRunner{outputs: map[string]string{
		"tc qdisc show dev eth0": defaultQdisc,
	}}
	m := NewManager(rr)

	_, ok, err := m.Inspect("eth0")
	require.NoError(t, err)
	assert.False(t, ok)
}
