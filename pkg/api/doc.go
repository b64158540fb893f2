// Package api defines the wire types shared by the transform endpoints and
// the message channel.
//
// Core types:
//   - [TransformRequest]: asynchronous request referencing a source in the shared file store
//   - [TransformReply]: reply carrying the target reference or the error details
//   - [InternalContext]: routing state carried unchanged between request and reply
//   - [APIError]: Structured error with type, code, param, and message
//
// The package performs no I/O. JSON field names follow the Alfresco transform
// message format so existing clients and routers can talk to the service.
package api
