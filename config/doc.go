// Package config loads the YAML configuration of a docvec store.
//
// Example:
//
//	log:
//	  level: info
//	  format: text
//	embedder:
//	  kind: openai
//	  model: text-embedding-3-small
//	  dimension: 384
//	  api_key: ${OPENAI_API_KEY}
//	storage:
//	  kind: sqlite
//	  path: /var/lib/docvec/docvec.db
//	index:
//	  kind: cover
//	metadata:
//	  kind: redis
//	  addr: localhost:6379
//	collections:
//	  - name: imdb_reviews
//	    dimension: 384
//	    indexed_fields: [sentiment]
//
// Values of the form ${NAME} are replaced with environment variables before
// parsing.
package config
