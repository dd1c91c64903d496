package audit

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/gateway-fm/txdispatch/internal/pipeline"
)

func testRecord() Record {
	return Record{
		Status:   StatusSuccess,
		Batch:    3,
		TxHash:   common.HexToHash("0xABCDEF"),
		SrcChain: 20001,
		DstChain: 20002,
		From:     common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		To:       common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		Amount:   big.NewInt(1_000_000_000_000_000),
	}
}

func TestRecord_Line(t *testing.T) {
	want := "success,3," +
		"0x0000000000000000000000000000000000000000000000000000000000abcdef," +
		"20001,20002," +
		"0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266," +
		"0x70997970c51812dc3a010c7d01b50e0d17dc79c8," +
		"1000000000000000"
	require.Equal(t, want, testRecord().Line())

	r := testRecord()
	r.Amount = nil
	require.True(t, strings.HasSuffix(r.Line(), ",0"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		in   pipeline.Status
		want Status
	}{
		{pipeline.StatusConfirmed, StatusSuccess},
		{pipeline.StatusReverted, StatusFailed},
		{pipeline.StatusFailed, StatusFailed},
		{pipeline.StatusTimedOut, StatusPending},
		{pipeline.StatusSubmitted, StatusPending},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.in); got != tt.want {
			t.Errorf("StatusFor(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFileLog_AppendsConcurrently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eth-transfer-1way.log")

	// Existing content is kept.
	require.NoError(t, os.WriteFile(path, []byte("pending,0,x\n"), 0o644))

	log, err := OpenFileLog(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := testRecord()
			r.Batch = i
			if err := log.Append(r); err != nil {
				t.Errorf("Append() error = %v", err)
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 51)
	require.Equal(t, "pending,0,x", lines[0])
	for _, line := range lines[1:] {
		require.Len(t, strings.Split(line, ","), 8)
	}
}

type failingSink struct{ err error }

func (f failingSink) Append(Record) error { return f.err }

func TestMulti(t *testing.T) {
	a, b := &Memory{}, &Memory{}
	boom := errors.New("disk full")

	m := Multi{a, failingSink{boom}, nil, b}
	err := m.Append(testRecord())

	require.ErrorIs(t, err, boom)
	require.Len(t, a.Records(), 1)
	require.Len(t, b.Records(), 1)
	require.NoError(t, Discard.Append(testRecord()))
}
