package testutil

// depData holds one dependency row.
type depData struct {
	target string
	kind   string
	savors string
}

// packageData holds one package row and its dependencies.
type packageData struct {
	key    string
	savors string
	deps   []depData
}

// PackageOption configures a package during builder setup.
type PackageOption func(*packageData)

// Savors sets the package savors in canonical "a+b" form.
func Savors(savors string) PackageOption {
	return func(p *packageData) { p.savors = savors }
}

// DependsOn adds a transitive dependency on target.
func DependsOn(target string) PackageOption {
	return DependsOnKind(target, "transitive", "")
}

// DependsOnKind adds a dependency with an explicit kind and applicable
// savors. Kinds are stored verbatim so invalid ones can be tested.
func DependsOnKind(target, kind, savors string) PackageOption {
	return func(p *packageData) {
		p.deps = append(p.deps, depData{target: target, kind: kind, savors: savors})
	}
}
