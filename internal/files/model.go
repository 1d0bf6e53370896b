// Package files provides the file cache, storages, mounts and the access
// rules that decide which users can reach a file.
package files

import (
	"path"
	"strings"
)

// DirectoryMimetype marks folder entries in the file cache.
const DirectoryMimetype = "httpd/unix-directory"

// HomeStoragePrefix prefixes the storage id of every user home.
const HomeStoragePrefix = "home::"

// Node is a file cache entry.
type Node struct {
	ID        int64  `json:"id"`
	StorageID int64  `json:"storage"`
	Path      string `json:"path"`
	ParentID  int64  `json:"parent"`
	Name      string `json:"name"`
	Mimetype  string `json:"mimetype"`
	Size      int64  `json:"size"`
	MTime     int64  `json:"mtime"`
}

// IsDir reports whether the node is a folder.
func (n *Node) IsDir() bool {
	return n.Mimetype == DirectoryMimetype
}

// ItemType returns "folder" or "file".
func (n *Node) ItemType() string {
	if n.IsDir() {
		return "folder"
	}
	return "file"
}

// Contains reports whether other lies strictly below n in the same storage.
func (n *Node) Contains(other *Node) bool {
	if n.StorageID != other.StorageID || n.ID == other.ID {
		return false
	}
	if n.Path == "" {
		return other.Path != ""
	}
	return strings.HasPrefix(other.Path, n.Path+"/")
}

// Storage is a backend holding a tree of nodes.
type Storage struct {
	NumericID int64  `json:"numeric_id"`
	ID        string `json:"id"`
	Available bool   `json:"available"`
}

// Mount makes the subtree at RootID visible to a user at MountPoint.
type Mount struct {
	ID         int64  `json:"id"`
	StorageID  int64  `json:"storage_id"`
	RootID     int64  `json:"root_id"`
	UserID     string `json:"user_id"`
	MountPoint string `json:"mount_point"`
}

// HomeStorageID returns the storage id of uid's home.
func HomeStorageID(uid string) string {
	return HomeStoragePrefix + uid
}

// HomeMountPoint returns the mount point of uid's home.
func HomeMountPoint(uid string) string {
	return "/" + uid + "/"
}

// IsHomeMount reports whether m is its user's home mount.
func (m *Mount) IsHomeMount() bool {
	return m.MountPoint == HomeMountPoint(m.UserID)
}

// parentPath returns the cache path of the parent of p; the storage root
// has path "".
func parentPath(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}
