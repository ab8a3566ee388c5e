package provider

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamesh-labs/walletgate/ports"
)

func TestMemoryProviderEmitsEvents(t *testing.T) {
	p := NewMemoryProvider("0x1", "0xabc")

	p.EmitAccountsChanged("0xdef")
	p.EmitChainChanged("0x89")

	ev := <-p.Events()
	assert.Equal(t, ports.AccountsChanged, ev.Type)
	assert.Equal(t, []string{"0xdef"}, ev.Accounts)

	ev = <-p.Events()
	assert.Equal(t, ports.ChainChanged, ev.Type)
	assert.Equal(t, "0x89", ev.ChainID)

	// the provider state tracks the notifications
	accounts, err := p.Accounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0xdef"}, accounts)
	chainID, err := p.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x89", chainID)
}

func TestMemoryProviderEmitAfterClose(t *testing.T) {
	p := NewMemoryProvider("0x1")
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	// notifications after close are dropped, not panicking
	p.EmitAccountsChanged("0xabc")
	p.EmitChainChanged("0x89")
}

func TestMemoryProviderCloseDuringEmit(t *testing.T) {
	for i := 0; i < 50; i++ {
		p := NewMemoryProvider("0x1")

		consumed := make(chan struct{})
		go func() {
			for range p.Events() {
			}
			close(consumed)
		}()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				p.EmitAccountsChanged("0xabc")
				p.EmitChainChanged("0x89")
			}
		}()

		require.NoError(t, p.Close())
		wg.Wait()
		<-consumed
	}
}
