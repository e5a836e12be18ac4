// ABOUTME: Route registration and path parsing for the memory API
// ABOUTME: Maps method+path combinations onto engine operations

package gateway

import (
	"net/http"
	"strings"
)

// registerRoutes wires every API endpoint onto the mux. Subtree patterns
// handle the id-bearing paths; method dispatch happens in the handlers.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", g.handleRoot)
	mux.HandleFunc("/docs", g.handleDocs)
	mux.HandleFunc("/health", g.handleHealth)

	mux.HandleFunc("/configure", g.handleConfigure)
	mux.HandleFunc("/users", g.handleUsers)
	mux.HandleFunc("/users/me", g.handleUserMe)
	mux.HandleFunc("/mem_cubes", g.handleCubes)
	mux.HandleFunc("/mem_cubes/", g.handleCubeByID)
	mux.HandleFunc("/memories", g.handleMemories)
	mux.HandleFunc("/memories/", g.handleMemoryByPath)
	mux.HandleFunc("/search", g.handleSearch)
	mux.HandleFunc("/chat", g.handleChat)
}

// handleRoot redirects the bare root to the API reference. Anything else
// that fell through the mux is unknown.
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		g.writeError(w, http.StatusNotFound, "not found")
		return
	}
	http.Redirect(w, r, "/docs", http.StatusTemporaryRedirect)
}

// splitPath returns the non-empty segments of the request path after the
// given prefix.
func splitPath(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// handleCubeByID dispatches /mem_cubes/{id} and /mem_cubes/{id}/share.
func (g *Gateway) handleCubeByID(w http.ResponseWriter, r *http.Request) {
	segments := splitPath(r.URL.Path, "/mem_cubes/")

	switch {
	case len(segments) == 1 && r.Method == http.MethodDelete:
		g.handleUnregisterCube(w, r, segments[0])
	case len(segments) == 2 && segments[1] == "share" && r.Method == http.MethodPost:
		g.handleShareCube(w, r, segments[0])
	default:
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleMemoryByPath dispatches /memories/{cube_id} and
// /memories/{cube_id}/{memory_id}.
func (g *Gateway) handleMemoryByPath(w http.ResponseWriter, r *http.Request) {
	segments := splitPath(r.URL.Path, "/memories/")

	switch {
	case len(segments) == 1 && r.Method == http.MethodDelete:
		g.handleDeleteAllMemories(w, r, segments[0])
	case len(segments) == 2:
		cubeID, memoryID := segments[0], segments[1]
		switch r.Method {
		case http.MethodGet:
			g.handleGetMemory(w, r, cubeID, memoryID)
		case http.MethodPut:
			g.handleUpdateMemory(w, r, cubeID, memoryID)
		case http.MethodDelete:
			g.handleDeleteMemory(w, r, cubeID, memoryID)
		default:
			g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	default:
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
