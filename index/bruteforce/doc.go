// Package bruteforce provides the exact vector index: every query scans all
// eligible vectors and scores them by cosine similarity. This is the
// reference behaviour for collections of hundreds to low thousands of
// documents.
package bruteforce
