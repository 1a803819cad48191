// Package badger persists collections in BadgerDB. Schemas and documents are
// msgpack-encoded values under the keys
//
//	schema/{name}
//	doc/{len(collection)}/{collection}/{id}
package badger
