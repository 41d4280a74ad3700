package emitter

// Runtime is the loader preamble included once at the top of every artifact.
// It installs the shared module table on the global object so modules defined
// across several artifacts land in one registry, a synchronous require keyed
// by numeric id, the async-loader indirection, and the start helper the
// execution trigger calls.
const Runtime = `
var global = typeof globalThis !== 'undefined' ? globalThis : this;
var modules = global.__m = global.__m || {};
var cache = global.__c = global.__c || {};
var loaded = global.__b = global.__b || {};

function __d(id, name, deps, factory) {
  modules[id] = { name: name, deps: deps, factory: factory };
}

function __r(id) {
  if (cache[id]) {
    return cache[id].exports;
  }
  var mod = modules[id];
  var module = {
    id: id,
    name: mod.name,
    exports: {}
  };
  cache[id] = module;
  mod.factory(module, module.exports, __r, __ra);
  return module.exports;
}

function __ra(id, bundleTable, specifier) {
  return function() {
    var pending = [];
    for (var path in bundleTable) {
      var file = bundleTable[path];
      if (!loaded[file]) {
        loaded[file] = true;
        pending.push(global.__fetchBundle(file));
      }
    }
    return Promise.all(pending).then(function() { return __r(id); });
  };
}

function __s(requires, main, mainId) {
  requires.forEach(function(file) {
    loaded[file] = true;
  });
  if (mainId !== undefined) {
    __r(mainId);
  }
}
`
