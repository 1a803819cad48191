// Package vec provides the vec SQLite virtual table: kNN search over the
// documents table of the sqlite storage, usable from plain SQL.
//
//	CREATE VIRTUAL TABLE vec_knn USING vec(index=cover);
//	SELECT doc_id, match_score FROM vec_knn
//	WHERE collection = 'reviews' AND doc_id MATCH ? AND match_score >= 0.5;
//
// The MATCH argument is a float32 BLOB, a JSON array or a comma separated
// list. Without MATCH the table lists the documents of the collection in
// insertion order. The in-memory index of a collection is rebuilt when its
// change-log SCN moves.
package vec
