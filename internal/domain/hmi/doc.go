/*
Package hmi implements the request/response channel to the head unit.

Requests are typed HMI API calls (UI.AddCommand, VR.AddCommand, ...) built by
the helpers in requests.go. The Dispatcher assigns every request a
correlation id and keeps a map from correlation id to the continuation that
observes its reply. Replies come back through a single Deliver function,
called by the transport's read loop.

A request whose reply does not arrive within the configured timeout is
dropped from the map and its observer receives a synthetic TIMED_OUT event.
Replies for dropped or unknown ids are ignored.

WSTransport is the WebSocket endpoint the head unit connects to. Frames are
JSON-RPC 2.0 messages:

	{"jsonrpc":"2.0","id":12,"method":"UI.AddCommand","params":{...}}
	{"jsonrpc":"2.0","id":12,"result":{"code":0,"method":"UI.AddCommand"}}
	{"jsonrpc":"2.0","method":"BasicCommunication.OnAppActivated","params":{"appID":65537}}
*/
package hmi
