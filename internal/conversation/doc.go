package conversation

// Package conversation drives one question-at-a-time exchanges with users.
//
// Each command that needs more input than its inline parameters provide
// implements the Conversation interface; the Engine owns the registry of
// live conversations, routes follow-up messages to them, and guarantees
// exactly one final reply per conversation.
