package region

import (
	"fmt"

	"github.com/penguintechinc/shmem-admin/internal/pagesize"
	"github.com/penguintechinc/shmem-admin/internal/shmemerr"
)

// PathBufMax bounds the total length of a resolved region path to a fixed
// buffer size.
const PathBufMax = 256

// ResolvePath computes "<base>/<page_sz_cstr>/<name>". It fails with
// shmemerr.InvalidArg if name is ill-formed, page_sz is not one of the known
// sizes, or the result would overflow PathBufMax.
func ResolvePath(base string, pageSz pagesize.PageSize, name string) (string, error) {
	if ValidateName(name) == 0 {
		return "", shmemerr.New("resolve_path", shmemerr.InvalidArg, fmt.Errorf("bad name %q", name))
	}
	if !pagesize.IsValid(pageSz) {
		return "", shmemerr.New("resolve_path", shmemerr.InvalidArg, fmt.Errorf("bad page_sz %d", pageSz))
	}

	path := base + "/" + pageSz.String() + "/" + name
	if len(path) >= PathBufMax {
		return "", shmemerr.New("resolve_path", shmemerr.InvalidArg, fmt.Errorf("path %q exceeds %d bytes", path, PathBufMax))
	}

	return path, nil
}
