// Package idxdb defines a transactional key/value storage contract in the
// shape of IndexedDB: named stores of items with a primary key, secondary
// indexes (unique, multi-entry, full-text), range and count queries, and
// exclusive/shared transactions.
//
// Backends implement [Provider]:
//   - [github.com/calvinalkan/idxdb/pkg/idxdb/memdb] keeps everything in
//     process memory
//   - [github.com/calvinalkan/idxdb/pkg/idxdb/sqlitedb] stores items and
//     index entries in SQLite tables
//
// Both share key encoding ([github.com/calvinalkan/idxdb/pkg/idxdb/keycodec]),
// tokenization ([github.com/calvinalkan/idxdb/pkg/idxdb/fulltext]), lock
// scheduling ([github.com/calvinalkan/idxdb/pkg/idxdb/txlock]) and the
// full-text resolver ([ResolveFullText]), so they agree on ordering and
// search results.
//
// # Keys
//
// Keys are numbers, dates ([time.Time]) or strings, or tuples of those for
// compound key paths. Across types, numbers sort before dates and dates
// before strings.
//
// # Transactions
//
// A transaction is admitted for a set of stores in exclusive or shared mode
// and must end with Commit or Abort. [Update] and [View] wrap that pattern:
//
//	err := idxdb.Update(ctx, db, []string{"users"}, func(tx idxdb.Transaction) error {
//	    users, err := tx.Store("users")
//	    if err != nil {
//	        return err
//	    }
//
//	    return users.Put(ctx, idxdb.Item{"id": "u1", "email": "a@example.com"})
//	})
//
// Single-operation helpers such as [Get], [Put] and [GetRange] open their own
// transaction.
//
// # Errors
//
// Missing data is not an error. Malformed keys, unknown names and misuse of
// finished transactions return sentinel errors (see errors.go), usually
// wrapped in [*Error] with store and index context.
package idxdb
