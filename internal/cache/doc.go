// Package cache resolves logical cache names to persistent volumes.
//
// A volume is a host directory under the registry root that job containers
// bind-mount. The directory name is derived from the logical name alone, so
// the same name reaches the same contents in every job of a run and in every
// later run on the same host. Volumes are created on first use and never
// removed by this package.
//
// Volumes are either shared, for stores whose writers tolerate one another
// (a Nix store filled by an idempotent installer), or exclusive, for stores
// that a job rewrites wholesale (a Composer vendor directory). Exclusive
// volumes carry a lock that the pipeline holds while a job has them mounted.
//
//	reg := cache.NewRegistry(paths.Volumes())
//	reg.Declare("composer-vendor", cache.Exclusive)
//
//	vol, err := reg.Volume("composer-vendor")
//	if err != nil {
//	    return err
//	}
//	vol.Lock()
//	defer vol.Unlock()
package cache
