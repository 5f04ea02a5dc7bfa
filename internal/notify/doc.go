// Package notify delivers text to subscribed chats.
//
// Delivery is best effort: recipients are tried one at a time in
// registration order, a failure is logged and recorded in the Report, and
// the loop continues with the next recipient. There is no retry.
package notify
