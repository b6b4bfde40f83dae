package testutil

// WithDependencyChain adds a nuget chain where P depends on Q, matching the
// smallest catalog a resolver can be exercised with.
func (b *Builder) WithDependencyChain() *Builder {
	return b.
		WithPackage("nuget:Q@1.0.0").
		WithPackage("nuget:P@1.0.0", DependsOn("nuget:Q@1.0.0"))
}

// WithFrameworkCatalog adds nuget packages with framework savors.
//
// Structure:
//
//	App@2.0.0 [net8.0+netstandard2.0]
//	  ├── Core@1.1.0 (transitive, net8.0)
//	  │     └── Text@1.0.0
//	  └── Missing@9.9.9 (private; not in the catalog)
//
//	Core@1.0.0, Core@1.2.0-rc.1 and Core@1.3.0-alpha are other versions.
func (b *Builder) WithFrameworkCatalog() *Builder {
	return b.
		WithSavorContext("frameworks").
		WithPackage("nuget:Text@1.0.0", Savors("net8.0+netstandard2.0")).
		WithPackage("nuget:Core@1.0.0").
		WithPackage("nuget:Core@1.1.0",
			Savors("net8.0+netstandard2.0"),
			DependsOn("nuget:Text@1.0.0")).
		WithPackage("nuget:Core@1.2.0-rc.1").
		WithPackage("nuget:Core@1.3.0-alpha").
		WithPackage("nuget:App@2.0.0",
			Savors("net8.0+netstandard2.0"),
			DependsOnKind("nuget:Core@1.1.0", "transitive", "net8.0"),
			DependsOnKind("nuget:Missing@9.9.9", "private", ""))
}
