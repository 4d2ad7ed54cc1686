// Package gateway defines the client contract between the connection
// pool and the chat transport, plus the Matrix implementation of it.
//
// The pool and router only see the contract types: Dialer constructs a
// Client from an agent record, Connect authenticates and yields the bot
// Identity, Run blocks in the receive loop, and inbound traffic arrives
// as normalized Events through the registered MessageHandler. Outbound
// traffic goes through Reply (threaded), Send (plain), and Typing.
//
// MatrixClient maps the contract onto mautrix: whoami on connect, the
// default syncer's message callback for events, joined-member counts to
// tell direct conversations from group rooms, and m.space.parent state
// to attribute rooms to spaces. Both classifications are cached per
// room for the life of the connection.
package gateway
