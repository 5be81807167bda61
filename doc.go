// Package pushbridge wires a platform push-notification token into a messaging
// backend and rebroadcasts the backend-assigned token to the rest of the
// application.
//
// The Bridge owns the startup sequence: configure the backend, request
// notification permission, trigger remote registration on the main execution
// context, forward the device token to the backend, and publish every backend
// token as a RegistrationEvent on a typed Bus.
//
// The fcm subpackage provides a messaging backend, desktop provides a host
// standing in for the OS notification APIs, and mainthread provides the UI
// execution context.
package pushbridge
