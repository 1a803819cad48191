// Package bootstrap assembles a collection.Store and its backends from a
// config.Config.
package bootstrap
