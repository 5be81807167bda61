// Package fcm is a Firebase Cloud Messaging backend for pushbridge.
//
// It performs a GCM check-in, registers the platform device token with the
// register3 endpoint, and reports the resulting FCM token to the installed
// pushbridge.TokenDelegate. Credentials are cached in the session directory
// so relaunches with the same device token reuse the issued FCM token.
//
// Usage:
//
//	client := fcm.NewClient(sessionDir, fcm.Config{SenderID: "1234", AppID: "com.example.app"})
//	if err := client.Configure(ctx); err != nil { ... }
//	client.SetTokenDelegate(bridge)
//	client.SetDeviceToken(deviceToken)
package fcm
