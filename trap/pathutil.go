package trap

import "path"

// parentOf and baseOf split a resolved absolute path into the directory to
// Find and the final component to create/unlink/link, the same split
// fd.Cwd_t's Fullpath/Chdir already lean on package path for.
func parentOf(p string) string {
	d := path.Dir(p)
	if d == "/" {
		return ""
	}
	return d
}

func baseOf(p string) string { return path.Base(p) }

func pathIsAbs(p string) bool { return path.IsAbs(p) }
