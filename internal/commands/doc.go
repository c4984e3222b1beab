package commands

// Package commands declares the chat command surface: descriptors with
// typed named parameters, key=value extraction from free text, the router
// that dispatches inbound messages, and the concrete conversations behind
// each command.
