package server

import (
	"context"
	"testing"

	"github.com/ValentinKolb/dVer/rpc/common"
	"github.com/ValentinKolb/dVer/rpc/serializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, stores ...common.ServerStore) *RPCServer {
	t.Helper()
	srv := NewRPCServer(common.ServerConfig{
		Stores:        stores,
		DataDir:       t.TempDir(),
		TimeoutSecond: 5,
		LogLevel:      "error",
	}, nil, serializer.NewJSONSerializer())
	return srv
}

func TestInitSeveralServers(t *testing.T) {
	for i := 0; i < 3; i++ {
		srv := newServer(t, common.ServerStore{StoreID: 1, Type: common.StoreTypeMemory})
		require.NoError(t, srv.Init(), "server %d", i)
		srv.Close()
	}
}

func TestInitDuplicateStore(t *testing.T) {
	srv := newServer(t,
		common.ServerStore{StoreID: 1, Type: common.StoreTypeMemory},
		common.ServerStore{StoreID: 1, Type: common.StoreTypeBolt},
	)
	defer srv.Close()
	assert.Error(t, srv.Init())
}

func TestHandleRoundTrip(t *testing.T) {
	srv := newServer(t,
		common.ServerStore{StoreID: 1, Type: common.StoreTypeMemory},
		common.ServerStore{StoreID: 2, Type: common.StoreTypeBolt},
	)
	require.NoError(t, srv.Init())
	defer srv.Close()

	s := serializer.NewJSONSerializer()
	for _, storeId := range []uint64{1, 2} {
		req, err := s.Serialize(*common.NewVCreateRequest("pages", "p1", []byte(`{"title":"a"}`)))
		require.NoError(t, err)

		var resp common.Message
		require.NoError(t, s.Deserialize(srv.Handle(context.Background(), storeId, req), &resp))
		require.NoError(t, common.ErrorOf(&resp))
		assert.Equal(t, "p1", resp.Key)
		assert.Equal(t, int64(1), resp.Expected)
	}
}
