// Package cache persists the results of data-retrieval functions on disk and
// serves them back until they go stale.
//
// # Decorator
//
// [New] wraps a [Fetcher] in a [Decorator]. Every call to [Decorator.Call]
// binds the call's arguments against the declared parameters, resolves a file
// path for the current time bucket and then either loads the file or invokes
// the fetcher and saves what it returns:
//
//	prices, err := cache.New("prices", fetchPrices,
//		cache.WithParams(cache.Param{Name: "ticker", Required: true}),
//		cache.WithPathFormat("prices/{ticker}/[date].csv"),
//		cache.WithStalenessString("2d"),
//	)
//	data, err := prices.Call(ctx, cache.Positional("AAPL"))
//
// # Paths
//
// Paths are rendered from a [pathtmpl] template with the bound arguments
// plus three derived values: func (the decorator name), hash_key (a digest of
// every bound argument) and date (the current bucket, see [WithBucket]).
// Relative paths are placed under the root directory, which defaults to
// [DefaultRoot]. [WithPathBuilder] replaces templating entirely.
//
// # Hits and misses
//
// An existing file at the resolved path is always a hit, whatever its age.
// Otherwise, when a staleness window is set and the template contains the
// [date] bucket, files written for earlier buckets are scanned newest first
// and the first one modified inside the window is reused. [Reload] skips both
// checks.
//
// On a miss the fetcher runs and its result is saved through the
// [serializer] registry, chosen by file extension, unless the result is
// empty. A path whose extension has no registered format and no override
// simply isn't cached. Save failures are logged and the fetched data is still
// returned, so callers see the same result whether it came from disk or not.
//
// Concurrent callers missing on the same path may both fetch; the last one
// to rename its file into place wins.
package cache
