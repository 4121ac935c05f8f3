package rw

import (
	"errors"
)

// Application errors
var (
	// Setup errors
	ErrNoRootModule      = errors.New("application needs a root module")
	ErrUnknownPlugin     = errors.New("plugin enabled in configuration is not registered")
	ErrPluginRegistered  = errors.New("plugin already registered")
	ErrInvalidPluginFlag = errors.New("plugin flag must be a boolean")
	ErrNotConfigured     = errors.New("application has not run its configuration phase")
	ErrModuleCycle       = errors.New("module mounted inside itself")

	// Mail errors
	ErrNoRecipients = errors.New("mail needs at least one recipient")
)
