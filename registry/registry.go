// Package registry loads Protocol Buffer service definitions from .proto
// source files at runtime and resolves fully-qualified "Service/Method"
// names to method descriptors, without requiring any compile-time
// generated Go proto types.
package registry

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Registry holds the set of services resolved from loaded proto files,
// indexed by package path and service short name. It is safe for
// concurrent use: loading happens once at startup under a coarse lock,
// and lookups afterward only read.
type Registry struct {
	mu       sync.RWMutex
	services map[string]map[string]*desc.ServiceDescriptor // pkgPath -> serviceName -> descriptor
}

// New returns an empty Registry. Call Load to populate it before serving
// any traffic.
func New() *Registry {
	return &Registry{
		services: make(map[string]map[string]*desc.ServiceDescriptor),
	}
}

// Load parses protoFiles (given as paths) using the effective include-path
// resolution from §4.1: the union of includeDirs, the parent directory of
// every proto file, and cwd (".") , in that order, de-duplicated preserving
// first occurrence. Every service found across the parsed files is indexed.
func (r *Registry) Load(protoFiles []string, includeDirs []string) error {
	if len(protoFiles) == 0 {
		return fmt.Errorf("registry: no proto files supplied")
	}

	importPaths := resolveIncludePaths(protoFiles, includeDirs)
	parser := protoparse.Parser{
		ImportPaths:           importPaths,
		IncludeSourceCodeInfo: false,
	}

	// ParseFiles looks each name up under the import paths, so the given
	// paths are first rewritten relative to the import path containing them.
	names, err := protoparse.ResolveFilenames(importPaths, protoFiles...)
	if err != nil {
		return fmt.Errorf("registry: failed to resolve proto files against include paths: %w", err)
	}

	fds, err := parser.ParseFiles(names...)
	if err != nil {
		return fmt.Errorf("registry: failed to parse proto files: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, fd := range fds {
		r.indexFile(fd)
	}
	return nil
}

// indexFile records every service declared in fd (and its dependencies,
// since protoparse returns the full dependency closure reachable from the
// requested files) under its package path.
func (r *Registry) indexFile(fd *desc.FileDescriptor) {
	pkg := fd.GetPackage()
	for _, svc := range fd.GetServices() {
		byName, ok := r.services[pkg]
		if !ok {
			byName = make(map[string]*desc.ServiceDescriptor)
			r.services[pkg] = byName
		}
		byName[svc.GetName()] = svc
	}
	for _, dep := range fd.GetDependencies() {
		r.indexFile(dep)
	}
}

// resolveIncludePaths computes the effective search path per §4.1: user
// dirs first, then each proto file's parent directory, then ".", with
// duplicates removed preserving the first occurrence.
func resolveIncludePaths(protoFiles []string, includeDirs []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(dir string) {
		if dir == "" {
			dir = "."
		}
		dir = filepath.Clean(dir)
		if !seen[dir] {
			seen[dir] = true
			out = append(out, dir)
		}
	}
	for _, d := range includeDirs {
		add(d)
	}
	for _, f := range protoFiles {
		add(filepath.Dir(f))
	}
	add(".")
	return out
}

// ParseFQMethod splits "pkg.sub.Service/Method" into its package path,
// service short name, and method name. Input must contain exactly one "/".
func ParseFQMethod(fq string) (pkgPath, serviceName, methodName string, err error) {
	slash := -1
	for i := 0; i < len(fq); i++ {
		if fq[i] == '/' {
			if slash >= 0 {
				return "", "", "", status.Errorf(codes.InvalidArgument, "method %q has more than one '/'", fq)
			}
			slash = i
		}
	}
	if slash < 0 {
		return "", "", "", status.Errorf(codes.InvalidArgument, "method %q is missing a '/' separating service from method", fq)
	}
	svcFQN := fq[:slash]
	methodName = fq[slash+1:]
	if svcFQN == "" || methodName == "" {
		return "", "", "", status.Errorf(codes.InvalidArgument, "method %q has an empty service or method name", fq)
	}

	dot := -1
	for i := len(svcFQN) - 1; i >= 0; i-- {
		if svcFQN[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return "", svcFQN, methodName, nil
	}
	return svcFQN[:dot], svcFQN[dot+1:], methodName, nil
}

// GetMethodDescriptor resolves a (pkgPath, serviceName, methodName) triple
// against the loaded registry. Each missing element yields a distinct
// NOT_FOUND error naming it.
func (r *Registry) GetMethodDescriptor(pkgPath, serviceName, methodName string) (*MethodDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName, ok := r.services[pkgPath]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "package %q not found", pkgPath)
	}
	svc, ok := byName[serviceName]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "service %q not found in package %q", serviceName, pkgPath)
	}
	method := svc.FindMethodByName(methodName)
	if method == nil {
		return nil, status.Errorf(codes.NotFound, "method %q not found on service %q", methodName, serviceName)
	}

	return &MethodDescriptor{
		PkgPath:            pkgPath,
		ServiceName:        serviceName,
		MethodName:         methodName,
		RequestStreaming:   method.IsClientStreaming(),
		ResponseStreaming:  method.IsServerStreaming(),
		Desc:               method,
		FullServiceName:    svc.GetFullyQualifiedName(),
	}, nil
}
