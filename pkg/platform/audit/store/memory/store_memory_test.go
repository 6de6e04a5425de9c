package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "certreg/pkg/domain"
	audit "certreg/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	first, second := id.CertificateID(0), id.CertificateID(1)

	require.NoError(t, store.Append(ctx, audit.Event{Action: audit.EventCertificateMinted, CertificateID: &first}))
	require.NoError(t, store.Append(ctx, audit.Event{Action: audit.EventCertificateMinted, CertificateID: &second}))
	require.NoError(t, store.Append(ctx, audit.Event{Action: audit.EventCertificateTransferred, CertificateID: &first}))
	require.NoError(t, store.Append(ctx, audit.Event{Action: audit.EventAdminChanged}))

	all := store.ListAll()
	require.Len(t, all, 4)
	assert.Equal(t, audit.EventAdminChanged, all[3].Action)

	forFirst := store.ListByCertificate(first)
	require.Len(t, forFirst, 2)
	assert.Equal(t, audit.EventCertificateMinted, forFirst[0].Action)
	assert.Equal(t, audit.EventCertificateTransferred, forFirst[1].Action)

	store.Clear()
	assert.Empty(t, store.ListAll())
}
