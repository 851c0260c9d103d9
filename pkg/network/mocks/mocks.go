package mocks

import (
	"github.com/eigerco/beacon/pkg/network/mocks/stream"
	"github.com/eigerco/beacon/pkg/network/mocks/transport"
)

func NewMockQuicStream() *stream.MockQuicStream {
	return stream.NewMockQuicStream()
}

func NewMockTransportConn() *transport.MockTransportConn {
	return transport.NewMockTransportConn()
}

func NewMockStreamHandler() *stream.MockStreamHandler {
	return stream.NewMockStreamHandler()
}
