// Package redis provides a metadata index stored in Redis sets, so several
// store processes can share one inverted index per collection.
//
// Keys, under the configured prefix and collection name:
//
//	{p}:fields                  set of registered fields
//	{p}:f:{len}:{field}:{value} set of ids holding value in field
//	{p}:id:{id}                 hash field -> value key, used to undo Put
package redis
