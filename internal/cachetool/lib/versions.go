package lib

import (
	"sort"

	"github.com/gingerrexayers/cachetool-go/internal/cachetool/types"
	"github.com/tidwall/btree"
)

// ResourceGroup holds every cached version of one logical resource file,
// latest first.
type ResourceGroup struct {
	ResourceName     string
	OriginalFilename string
	Versions         []types.Version
}

// Latest returns the most recently written version of the group.
func (g *ResourceGroup) Latest() types.Version {
	return g.Versions[0]
}

// Catalog joins descriptors to the blobs of a cache directory.
type Catalog struct {
	groups *btree.BTreeG[*ResourceGroup]

	Descriptors          int
	Matched              int
	UnmatchedDescriptors int
	UnmatchedBlobs       int
}

func newGroupIndex() *btree.BTreeG[*ResourceGroup] {
	less := func(a, b *ResourceGroup) bool {
		if a.ResourceName != b.ResourceName {
			return a.ResourceName < b.ResourceName
		}
		return a.OriginalFilename < b.OriginalFilename
	}
	return btree.NewBTreeGOptions(less, btree.Options{NoLocks: true})
}

// BuildCatalog matches descriptors against the blobs in cacheDir by blob
// name and groups the matches by (resource name, original filename).
// Descriptors without a blob and blobs without a descriptor are only counted.
func BuildCatalog(cacheDir string, descriptors []types.Descriptor) (*Catalog, error) {
	blobs, err := ListBlobs(cacheDir)
	if err != nil {
		return nil, err
	}

	c := &Catalog{groups: newGroupIndex(), Descriptors: len(descriptors)}
	referenced := make(map[string]bool, len(descriptors))

	for _, d := range descriptors {
		referenced[d.Filename] = true
		blob, ok := blobs[d.Filename]
		if !ok {
			c.UnmatchedDescriptors++
			continue
		}
		c.Matched++

		key := &ResourceGroup{ResourceName: d.ResourceName, OriginalFilename: d.OriginalFilename}
		group, found := c.groups.Get(key)
		if !found {
			group = key
			c.groups.Set(group)
		}
		group.Versions = append(group.Versions, types.Version{
			Descriptor: d,
			BlobPath:   blob.Path,
			ModTime:    blob.ModTime,
		})
	}

	for name := range blobs {
		if !referenced[name] {
			c.UnmatchedBlobs++
		}
	}

	c.groups.Scan(func(g *ResourceGroup) bool {
		sort.SliceStable(g.Versions, func(i, j int) bool {
			return g.Versions[i].ModTime.After(g.Versions[j].ModTime)
		})
		return true
	})
	return c, nil
}

// Groups returns the resource groups ordered by resource name, then filename.
func (c *Catalog) Groups() []*ResourceGroup {
	groups := make([]*ResourceGroup, 0, c.groups.Len())
	c.groups.Scan(func(g *ResourceGroup) bool {
		groups = append(groups, g)
		return true
	})
	return groups
}
