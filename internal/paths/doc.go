// Provides platform-appropriate paths for cruxci.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS. The program name "cruxci" is used as the subdirectory under each
// base path. Cache volumes live under the data directory because their
// contents are expected to survive ordinary cache cleanups.
package paths
