// Package service maps protocol type tags to handlers on the daemon side
// and runs single request/response queries on the client side.
//
// Every response starts with a status field (protocol.TypeStatus) carrying
// one uint16 entry. Clients that cannot obtain a well-formed status treat
// the exchange as StatusFail.
package service
